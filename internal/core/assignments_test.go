// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/fieldops/fieldaudit/internal/model"
)

func school(name, city string) map[string]any {
	return map[string]any{"school_name": name, "city": city}
}

func assignPayload(date string, schools ...any) Payload {
	return Payload{
		"controller_email": "boss@example.com",
		"trainer_email":    "fw@example.com",
		"assignment_date":  date,
		"schools":          schools,
	}
}

func TestAssignSchoolsValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	addUser(t, s, "fw@example.com", model.RoleFieldWorker, "boss@example.com")

	_, err := s.AssignSchools(ctx, assignPayload("2025-03-11"))
	e := wantError(t, err, http.StatusBadRequest, "assignment.missing_field")
	if e.Msg.Data["Field"] != "schools" {
		t.Fatalf("Field = %v", e.Msg.Data["Field"])
	}
	cases := []struct {
		date string
		id   string
	}{
		{"2025-03-09", "assignment.past_date"},
		{"2025-03-18", "assignment.too_far"},
		{"2025/03/12", "assignment.invalid_date"},
	}
	for _, c := range cases {
		_, err := s.AssignSchools(ctx, assignPayload(c.date, school("A", "Pune")))
		wantError(t, err, http.StatusBadRequest, c.id)
	}
	_, err = s.AssignSchools(ctx, assignPayload("2025-03-17", map[string]any{"school_name": "A"}))
	wantError(t, err, http.StatusBadRequest, "assignment.school_fields")

	p := assignPayload("2025-03-10", school("A", "Pune"))
	p["trainer_email"] = "ghost@example.com"
	_, err = s.AssignSchools(ctx, p)
	wantError(t, err, http.StatusNotFound, "assignment.trainer_not_found")
}

func TestAssignSchoolsConflictAndOverwrite(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	addUser(t, s, "fw@example.com", model.RoleFieldWorker, "boss@example.com")

	resp, err := s.AssignSchools(ctx, assignPayload("2025-03-11", school("A", "Pune"), school("B", "Pune")))
	if err != nil {
		t.Fatalf("AssignSchools: %v", err)
	}
	if resp["schools_count"] != 2 || resp["overwritten"] != false {
		t.Fatalf("unexpected response: %v", resp)
	}

	_, err = s.AssignSchools(ctx, assignPayload("2025-03-11", school("C", "Pune")))
	e := wantError(t, err, http.StatusConflict, "assignment.exists")
	existing := e.Extra["existing_assignment"].(map[string]any)
	if e.Extra["conflict"] != true || existing["schools_count"] != 2 {
		t.Fatalf("unexpected conflict details: %v", e.Extra)
	}

	p := assignPayload("2025-03-11", school("C", "Pune"))
	p["allow_overwrite"] = true
	resp, err = s.AssignSchools(ctx, p)
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if msg := resp["message"].(Msg); msg.ID != "assignment.overwritten" || msg.Data["Count"] != 2 || resp["overwritten"] != true {
		t.Fatalf("unexpected overwrite response: %v", resp)
	}

	check, err := s.CheckAssignment(ctx, "fw@example.com", "2025-03-11")
	if err != nil {
		t.Fatalf("CheckAssignment: %v", err)
	}
	if check["exists"] != true || check["assignment"].(map[string]any)["schools_count"] != 1 {
		t.Fatalf("unexpected check: %v", check)
	}
	if check, _ := s.CheckAssignment(ctx, "fw@example.com", "2025-03-12"); check["exists"] != false {
		t.Fatalf("unexpected check for free day: %v", check)
	}
	_, err = s.CheckAssignment(ctx, "fw@example.com", "12-03-2025")
	wantError(t, err, http.StatusBadRequest, "assignment.invalid_date")

	list, err := s.TrainerAssignments(ctx, "fw@example.com", "", "")
	if err != nil {
		t.Fatalf("TrainerAssignments: %v", err)
	}
	if n := len(list["assignments"].([]map[string]any)); n != 1 {
		t.Fatalf("assignments = %d", n)
	}
}

func TestTodayAssignments(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	addUser(t, s, "fw@example.com", model.RoleFieldWorker, "boss@example.com")

	empty, err := s.TodayAssignments(ctx, "fw@example.com", "")
	if err != nil {
		t.Fatalf("TodayAssignments: %v", err)
	}
	if empty["assignment_date"] != "2025-03-10" || empty["message"].(Msg).ID != "assignment.none_for_date" {
		t.Fatalf("unexpected empty response: %v", empty)
	}

	_, err = s.AssignSchools(ctx, assignPayload("2025-03-10",
		school("Govt School", "Pune"),
		school("govt school", "PUNE"),
		map[string]any{"school_name": "Hill School", "city": "Pune", "contact": "Mr. Rao"},
		school("Lake School", "Pune"),
	))
	if err != nil {
		t.Fatalf("AssignSchools: %v", err)
	}
	startAudit(t, s)
	done := &model.SchoolAudit{
		UserEmail:      "fw@example.com",
		SchoolName:     "Hill School",
		City:           "Pune",
		AuditDate:      "10 Mar 2025",
		AuditDay:       "2025-03-10",
		StartTimestamp: "10 Mar 2025, 07:00 AM IST",
		EndTimestamp:   "10 Mar 2025, 08:00 AM IST",
		Status:         model.StatusCompleted,
		CreatedAt:      testNow.Add(-3 * time.Hour),
	}
	if err := s.Store().InsertSchoolAudit(ctx, done); err != nil {
		t.Fatalf("InsertSchoolAudit: %v", err)
	}

	resp, err := s.TodayAssignments(ctx, "fw@example.com", "2025-03-10")
	if err != nil {
		t.Fatalf("TodayAssignments: %v", err)
	}
	if resp["duplicates_removed"] != 1 {
		t.Fatalf("duplicates_removed = %v", resp["duplicates_removed"])
	}
	sum := resp["summary"].(map[string]int)
	if sum["total_assigned"] != 3 || sum["completed"] != 1 || sum["in_progress"] != 1 || sum["pending"] != 1 {
		t.Fatalf("unexpected summary: %v", sum)
	}
	schools := resp["schools"].([]map[string]any)
	if schools[0]["audit_status"] != model.StatusInProgress || schools[0]["current_audit_data"] == nil {
		t.Fatalf("unexpected first school: %v", schools[0])
	}
	if schools[1]["audit_status"] != model.StatusCompleted || schools[1]["completion_timestamp"] != "10 Mar 2025, 08:00 AM IST" || schools[1]["contact"] != "Mr. Rao" {
		t.Fatalf("unexpected second school: %v", schools[1])
	}
	if schools[2]["audit_status"] != "pending" || schools[2]["audit_id"] != nil {
		t.Fatalf("unexpected third school: %v", schools[2])
	}
}

func TestControllerAssignmentsAndDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	addUser(t, s, "fw@example.com", model.RoleFieldWorker, "boss@example.com")

	for _, d := range []string{"2025-03-10", "2025-03-12"} {
		if _, err := s.AssignSchools(ctx, assignPayload(d, school("A", "Pune"))); err != nil {
			t.Fatalf("AssignSchools %s: %v", d, err)
		}
	}
	resp, err := s.ControllerAssignments(ctx, "boss@example.com", "")
	if err != nil {
		t.Fatalf("ControllerAssignments: %v", err)
	}
	list := resp["assignments"].([]map[string]any)
	if resp["filter"] != "upcoming" || len(list) != 2 || list[0]["assignment_date"] != "2025-03-12" {
		t.Fatalf("unexpected list: %v", resp)
	}
	if list[0]["trainer_name"] != "User fw@example.com" {
		t.Fatalf("trainer_name = %v", list[0]["trainer_name"])
	}
	if past, _ := s.ControllerAssignments(ctx, "boss@example.com", "past"); len(past["assignments"].([]map[string]any)) != 0 {
		t.Fatalf("unexpected past assignments: %v", past)
	}

	id := list[0]["_id"].(string)
	if _, err := s.DeleteAssignment(ctx, id); err != nil {
		t.Fatalf("DeleteAssignment: %v", err)
	}
	_, err = s.DeleteAssignment(ctx, id)
	wantError(t, err, http.StatusNotFound, "assignment.not_found")
}

func TestBulkAssign(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	addUser(t, s, "fw@example.com", model.RoleFieldWorker, "boss@example.com")
	if _, err := s.AssignSchools(ctx, assignPayload("2025-03-11", school("A", "Pune"))); err != nil {
		t.Fatalf("AssignSchools: %v", err)
	}

	resp, err := s.BulkAssign(ctx, Payload{
		"controller_email": "boss@example.com",
		"assignments": []any{
			map[string]any{"trainer_email": "fw@example.com", "assignment_date": "2025-03-11", "schools": []any{school("B", "Pune")}},
			map[string]any{"trainer_email": "fw2@example.com", "assignment_date": "2025-03-12", "schools": []any{school("C", "Pune")}},
			map[string]any{"trainer_email": "fw3@example.com", "assignment_date": "2025-03-12"},
			map[string]any{"trainer_email": "fw4@example.com", "assignment_date": "2025-04-30", "schools": []any{school("D", "Pune")}},
		},
	})
	if err != nil {
		t.Fatalf("BulkAssign: %v", err)
	}
	if resp["created"] != 1 || resp["updated"] != 1 {
		t.Fatalf("unexpected counts: %v", resp)
	}
	problems := resp["errors"].([]Msg)
	if len(problems) != 2 || problems[0].ID != "assignment.bulk_invalid" || problems[1].ID != "assignment.bulk_invalid_date" {
		t.Fatalf("unexpected errors: %v", problems)
	}

	a, err := s.Store().FindAssignment(ctx, "fw@example.com", "2025-03-11", true)
	if err != nil || len(a.Schools) != 1 || a.Schools[0].SchoolName != "B" {
		t.Fatalf("bulk update not stored: %+v, %v", a, err)
	}

	_, err = s.BulkAssign(ctx, Payload{"controller_email": "boss@example.com", "assignments": []any{}})
	wantError(t, err, http.StatusBadRequest, "assignment.missing_field")
}

func TestUpdateAssignment(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	past := &model.SchoolAssignment{
		ControllerEmail: "boss@example.com",
		TrainerEmail:    "fw@example.com",
		AssignmentDate:  "2025-03-05",
		Schools:         []model.School{{SchoolName: "A", City: "Pune"}},
		Status:          model.StatusActive,
		CreatedAt:       testNow,
	}
	if err := s.Store().InsertAssignment(ctx, past); err != nil {
		t.Fatalf("InsertAssignment: %v", err)
	}

	body := Payload{"schools": []any{school("B", "Pune"), school("C", "Pune")}}
	_, err := s.UpdateAssignment(ctx, past.ID, body)
	e := wantError(t, err, http.StatusForbidden, "assignment.past_edit")
	if e.Extra["is_past"] != true {
		t.Fatalf("unexpected extra: %v", e.Extra)
	}

	body["allow_past_edit"] = true
	resp, err := s.UpdateAssignment(ctx, past.ID, body)
	if err != nil {
		t.Fatalf("UpdateAssignment: %v", err)
	}
	if resp["schools_count"] != 2 || resp["is_past_assignment"] != true {
		t.Fatalf("unexpected response: %v", resp)
	}

	_, err = s.UpdateAssignment(ctx, "missing", body)
	wantError(t, err, http.StatusNotFound, "assignment.not_found")
	_, err = s.UpdateAssignment(ctx, past.ID, Payload{})
	wantError(t, err, http.StatusBadRequest, "assignment.missing_field")
}
