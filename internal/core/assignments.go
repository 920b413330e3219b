// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/fieldops/fieldaudit/internal/clock"
	"github.com/fieldops/fieldaudit/internal/db"
	"github.com/fieldops/fieldaudit/internal/logging"
	"github.com/fieldops/fieldaudit/internal/model"
)

// MaxAssignAheadDays bounds how far in advance schools can be assigned.
const MaxAssignAheadDays = 7

// parseSchools decodes an assignment's school list. Every entry needs a
// school name and a city.
func parseSchools(v any) ([]model.School, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, badRequest("assignment.school_fields")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, badRequest("assignment.school_fields")
	}
	var schools []model.School
	if err := json.Unmarshal(b, &schools); err != nil {
		return nil, badRequest("assignment.school_fields")
	}
	for _, s := range schools {
		if s.SchoolName == "" || s.City == "" {
			return nil, badRequest("assignment.school_fields")
		}
	}
	return schools, nil
}

// checkAssignDate returns the number of days from today to date.
func (s *Service) checkAssignDate(date string) (int, error) {
	d, err := clock.ParseDay(date)
	if err != nil {
		return 0, badRequest("assignment.invalid_date")
	}
	return clock.DaysBetween(s.clockNow(), d), nil
}

func assignmentBrief(a *model.SchoolAssignment) map[string]any {
	return map[string]any{
		"assignment_id": a.ID,
		"schools":       a.Schools,
		"schools_count": len(a.Schools),
		"created_by":    a.ControllerEmail,
		"created_at":    isoTime(a.CreatedAt),
	}
}

// AssignSchools assigns schools to a trainer for a day within the next week.
// An existing active assignment is only replaced when allow_overwrite is set.
func (s *Service) AssignSchools(ctx context.Context, p Payload) (Response, error) {
	for _, f := range []string{"controller_email", "trainer_email", "assignment_date", "schools"} {
		if !p.Bool(f) {
			return nil, badRequest("assignment.missing_field", "Field", f)
		}
	}
	trainer := p.Str("trainer_email")
	date := p.Str("assignment_date")
	overwrite := p.Bool("allow_overwrite")

	days, err := s.checkAssignDate(date)
	if err != nil {
		return nil, err
	}
	if days < 0 {
		return nil, badRequest("assignment.past_date")
	}
	if days > MaxAssignAheadDays {
		return nil, badRequest("assignment.too_far")
	}
	schools, err := parseSchools(p["schools"])
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetUserByEmail(ctx, trainer); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, notFound("assignment.trainer_not_found")
		}
		return nil, err
	}

	existing, err := s.store.FindAssignment(ctx, trainer, date, true)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if existing != nil && !overwrite {
		return nil, fail(http.StatusConflict, "assignment.exists").
			With("conflict", true).
			With("existing_assignment", assignmentBrief(existing))
	}

	now := s.clockNow().UTC()
	a := &model.SchoolAssignment{
		ControllerEmail: p.Str("controller_email"),
		TrainerEmail:    trainer,
		AssignmentDate:  date,
		Schools:         schools,
		Status:          model.StatusActive,
		CreatedAt:       now,
	}
	msg := M("assignment.created")
	if existing != nil {
		a.ID = existing.ID
		a.UpdatedAt = now
		a.PreviousAssignmentID = existing.ID
		if err := s.store.UpdateAssignment(ctx, a); err != nil {
			return nil, err
		}
		msg = M("assignment.overwritten", "Count", len(existing.Schools))
	} else if err := s.store.InsertAssignment(ctx, a); err != nil {
		return nil, err
	}
	logging.Infof("%d school(s) assigned to %s for %s", len(schools), trainer, date)

	return Response{
		"message":         msg,
		"assignment_date": date,
		"trainer_email":   trainer,
		"schools_count":   len(schools),
		"overwritten":     existing != nil,
	}, nil
}

// CheckAssignment reports whether a trainer already has schools for a day.
func (s *Service) CheckAssignment(ctx context.Context, trainer, date string) (Response, error) {
	if _, err := clock.ParseDay(date); err != nil {
		return nil, badRequest("assignment.invalid_date")
	}
	a, err := s.store.FindAssignment(ctx, trainer, date, true)
	if errors.Is(err, db.ErrNotFound) {
		return Response{"exists": false}, nil
	}
	if err != nil {
		return nil, err
	}
	return Response{"exists": true, "assignment": assignmentBrief(a)}, nil
}

func assignmentList(as []model.SchoolAssignment) []map[string]any {
	out := make([]map[string]any, 0, len(as))
	for i := range as {
		out = append(out, toMap(&as[i]))
	}
	return out
}

// TrainerAssignments lists a trainer's active assignments in a date range,
// by default the coming week.
func (s *Service) TrainerAssignments(ctx context.Context, trainer, start, end string) (Response, error) {
	if start == "" {
		start = s.today()
		end = ""
	}
	if end == "" {
		d, err := clock.ParseDay(start)
		if err != nil {
			return nil, badRequest("assignment.invalid_date")
		}
		end = d.AddDate(0, 0, MaxAssignAheadDays).Format(clock.DayLayout)
	}
	as, err := s.store.ListTrainerAssignments(ctx, trainer, start, end)
	if err != nil {
		return nil, err
	}
	return Response{"assignments": assignmentList(as), "trainer_email": trainer}, nil
}

type schoolAuditState struct {
	status    string
	audit     *model.SchoolAudit
	completed bool
}

// TodayAssignments returns a trainer's schools for a day, each merged with
// the state of the trainer's audit there.
func (s *Service) TodayAssignments(ctx context.Context, trainer, date string) (Response, error) {
	if date == "" {
		date = s.today()
	}
	day, err := clock.ParseDay(date)
	if err != nil {
		return nil, badRequest("assignment.invalid_date")
	}
	a, err := s.store.FindAssignment(ctx, trainer, date, true)
	if errors.Is(err, db.ErrNotFound) {
		return Response{
			"message":         M("assignment.none_for_date"),
			"schools":         []any{},
			"assignment_date": date,
			"summary": map[string]int{
				"total_assigned": 0, "completed": 0, "in_progress": 0, "pending": 0,
			},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	var unique []model.School
	seen := map[string]bool{}
	for _, sc := range a.Schools {
		if seen[sc.Key()] {
			logging.Debugf("duplicate school %s (%s) in assignment %s", sc.SchoolName, sc.City, a.ID)
			continue
		}
		seen[sc.Key()] = true
		unique = append(unique, sc)
	}

	refs := make([]db.SchoolRef, 0, len(unique))
	for _, sc := range unique {
		refs = append(refs, db.SchoolRef{SchoolName: sc.SchoolName, City: sc.City})
	}
	audits, err := s.store.ListSchoolAudits(ctx, db.SchoolAuditFilter{UserEmails: []string{trainer}, Schools: refs})
	if err != nil {
		return nil, err
	}
	slices.Reverse(audits)

	auditDate := clock.AuditDate(day)
	states := map[string]schoolAuditState{}
	for i := range audits {
		au := &audits[i]
		key := model.School{SchoolName: au.SchoolName, City: au.City}.Key()
		switch {
		case au.Status == model.StatusCompleted && au.AuditDate == auditDate:
			states[key] = schoolAuditState{status: model.StatusCompleted, audit: au, completed: true}
		case au.Status == model.StatusInProgress:
			if states[key].status != model.StatusInProgress {
				states[key] = schoolAuditState{status: model.StatusInProgress, audit: au}
			}
		}
	}

	counts := map[string]int{model.StatusCompleted: 0, model.StatusInProgress: 0, "pending": 0}
	schools := make([]map[string]any, 0, len(unique))
	for _, sc := range unique {
		m := toMap(sc)
		st, ok := states[sc.Key()]
		if !ok {
			counts["pending"]++
			m["audit_status"] = "pending"
			m["audit_id"] = nil
			m["start_timestamp"] = nil
			m["completion_timestamp"] = nil
			schools = append(schools, m)
			continue
		}
		counts[st.status]++
		m["audit_status"] = st.status
		m["audit_id"] = st.audit.ID
		m["start_timestamp"] = st.audit.StartTimestamp
		m["completion_timestamp"] = nil
		if st.completed {
			m["completion_timestamp"] = st.audit.EndTimestamp
		} else {
			m["current_audit_data"] = toMap(st.audit)
		}
		schools = append(schools, m)
	}

	return Response{
		"assignment":      toMap(a),
		"schools":         schools,
		"assignment_date": date,
		"summary": map[string]int{
			"total_assigned": len(unique),
			"completed":      counts[model.StatusCompleted],
			"in_progress":    counts[model.StatusInProgress],
			"pending":        counts["pending"],
		},
		"duplicates_removed": len(a.Schools) - len(unique),
	}, nil
}

// ControllerAssignments lists a controller's active assignments, newest
// date first. filter is "upcoming" (default), "past" or "all".
func (s *Service) ControllerAssignments(ctx context.Context, controller, filter string) (Response, error) {
	if filter == "" {
		filter = "upcoming"
	}
	as, err := s.store.ListControllerAssignments(ctx, controller, db.DateFilter{Mode: filter, Today: s.today()})
	if err != nil {
		return nil, err
	}
	names := map[string]string{}
	out := assignmentList(as)
	for i, a := range as {
		name, ok := names[a.TrainerEmail]
		if !ok {
			name = "Unknown"
			if u, err := s.store.GetUserByEmail(ctx, a.TrainerEmail); err == nil && u.FullName != "" {
				name = u.FullName
			}
			names[a.TrainerEmail] = name
		}
		out[i]["trainer_name"] = name
	}
	return Response{"assignments": out, "controller_email": controller, "filter": filter}, nil
}

// DeleteAssignment marks an assignment deleted.
func (s *Service) DeleteAssignment(ctx context.Context, id string) (Response, error) {
	changed, err := s.store.SoftDeleteAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, notFound("assignment.not_found")
	}
	return Response{"message": M("assignment.deleted")}, nil
}

// BulkAssign upserts many assignments by trainer and date. Invalid entries
// are reported in errors and do not stop the batch.
func (s *Service) BulkAssign(ctx context.Context, p Payload) (Response, error) {
	for _, f := range []string{"controller_email", "assignments"} {
		if !p.Bool(f) {
			return nil, badRequest("assignment.missing_field", "Field", f)
		}
	}
	controller := p.Str("controller_email")
	items, _ := p["assignments"].([]any)

	created, updated := 0, 0
	problems := []Msg{}
	for _, raw := range items {
		m, _ := raw.(map[string]any)
		item := Payload(m)
		trainer := item.Str("trainer_email")
		if trainer == "" {
			trainer = "unknown"
		}
		if !item.Bool("trainer_email") || !item.Bool("assignment_date") || !item.Bool("schools") {
			problems = append(problems, M("assignment.bulk_invalid", "Trainer", trainer))
			continue
		}
		date := item.Str("assignment_date")
		days, err := s.checkAssignDate(date)
		if err != nil || days < 0 || days > MaxAssignAheadDays {
			problems = append(problems, M("assignment.bulk_invalid_date", "Date", date, "Trainer", trainer))
			continue
		}
		schools, err := parseSchools(item["schools"])
		if err != nil {
			problems = append(problems, M("assignment.bulk_error", "Trainer", trainer, "Error", "each school must have school_name and city"))
			continue
		}

		a := &model.SchoolAssignment{
			ControllerEmail: controller,
			TrainerEmail:    trainer,
			AssignmentDate:  date,
			Schools:         schools,
			Status:          model.StatusActive,
			CreatedAt:       s.clockNow().UTC(),
		}
		existing, err := s.store.FindAssignment(ctx, trainer, date, false)
		switch {
		case err == nil:
			a.ID = existing.ID
			a.UpdatedAt = existing.UpdatedAt
			a.PreviousAssignmentID = existing.PreviousAssignmentID
			err = s.store.UpdateAssignment(ctx, a)
			if err == nil {
				updated++
			}
		case errors.Is(err, db.ErrNotFound):
			err = s.store.InsertAssignment(ctx, a)
			if err == nil {
				created++
			}
		}
		if err != nil {
			problems = append(problems, M("assignment.bulk_error", "Trainer", trainer, "Error", err.Error()))
		}
	}

	return Response{
		"message": M("assignment.bulk_done"),
		"created": created,
		"updated": updated,
		"errors":  problems,
	}, nil
}

// UpdateAssignment replaces the schools of an active assignment. Past
// assignments need allow_past_edit.
func (s *Service) UpdateAssignment(ctx context.Context, id string, p Payload) (Response, error) {
	if _, ok := p["schools"]; !ok {
		return nil, badRequest("assignment.missing_field", "Field", "schools")
	}
	schools, err := parseSchools(p["schools"])
	if err != nil {
		return nil, err
	}
	a, err := s.store.GetAssignment(ctx, id, true)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("assignment.not_found")
	}
	if err != nil {
		return nil, err
	}
	past := a.AssignmentDate < s.today()
	if past && !p.Bool("allow_past_edit") {
		return nil, fail(http.StatusForbidden, "assignment.past_edit").
			With("assignment_date", a.AssignmentDate).
			With("is_past", true)
	}
	a.Schools = schools
	a.UpdatedAt = s.clockNow().UTC()
	if err := s.store.UpdateAssignment(ctx, a); err != nil {
		logging.Errorf("could not update assignment %s: %v", id, err)
		return nil, fail(http.StatusInternalServerError, "assignment.update_failed")
	}
	return Response{
		"message":            M("assignment.updated"),
		"assignment_id":      a.ID,
		"schools_count":      len(schools),
		"assignment_date":    a.AssignmentDate,
		"is_past_assignment": past,
	}, nil
}
