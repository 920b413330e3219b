// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"bytes"
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/fieldops/fieldaudit/internal/clock"
	"github.com/fieldops/fieldaudit/internal/db"
	"github.com/fieldops/fieldaudit/internal/logging"
	"github.com/fieldops/fieldaudit/internal/model"
	"github.com/fieldops/fieldaudit/internal/report"
)

// studentsReached prefers the stored total, then enabled sessions, then the
// legacy per-session counters.
func studentsReached(a *model.SchoolAudit) int {
	if a.TotalStudents != nil {
		return *a.TotalStudents
	}
	if len(a.Sessions) > 0 {
		n := 0
		for _, s := range a.Sessions {
			if s.Enabled {
				n += s.StudentsCount.Int()
			}
		}
		return n
	}
	return a.LegacyStudents[0] + a.LegacyStudents[1] + a.LegacyStudents[2]
}

type auditTotals struct {
	total, completed, inProgress int
	students, sachets, sessions  int
	schools, cities, users       map[string]struct{}
}

func tally(audits []model.SchoolAudit) auditTotals {
	t := auditTotals{
		schools: map[string]struct{}{},
		cities:  map[string]struct{}{},
		users:   map[string]struct{}{},
	}
	for i := range audits {
		a := &audits[i]
		t.total++
		switch a.Status {
		case model.StatusCompleted:
			t.completed++
			t.sessions += a.SessionsCompleted
		case model.StatusInProgress:
			t.inProgress++
		}
		t.students += studentsReached(a)
		t.sachets += a.BoostSachetsGiven
		t.schools[a.SchoolName] = struct{}{}
		t.cities[a.City] = struct{}{}
		t.users[a.UserEmail] = struct{}{}
	}
	return t
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (t auditTotals) summary() map[string]any {
	return map[string]any{
		"total_audits":               t.total,
		"completed_audits":           t.completed,
		"in_progress_audits":         t.inProgress,
		"completion_rate":            round1(float64(t.completed) / float64(max(t.total, 1)) * 100),
		"total_students_reached":     t.students,
		"total_sachets_distributed":  t.sachets,
		"total_sessions_completed":   t.sessions,
		"unique_schools_visited":     len(t.schools),
		"unique_cities_covered":      len(t.cities),
		"average_students_per_audit": round1(float64(t.students) / float64(max(t.completed, 1))),
		"schools_list":               sortedKeys(t.schools),
		"cities_list":                sortedKeys(t.cities),
	}
}

// AuditSummary aggregates a user's audits over an optional date range.
func (s *Service) AuditSummary(ctx context.Context, email, from, to string) (Response, error) {
	f := db.SchoolAuditFilter{UserEmails: []string{email}}
	var err error
	if f.DayFrom, f.DayTo, err = dayRange(from, to); err != nil {
		return nil, err
	}
	audits, err := s.store.ListSchoolAudits(ctx, f)
	if err != nil {
		return nil, err
	}
	return Response(tally(audits).summary()), nil
}

// controllerWorkers resolves the field workers of a controller for reports.
func (s *Service) controllerWorkers(ctx context.Context, controllerEmail string) ([]string, error) {
	emails, err := s.fieldWorkerEmails(ctx, controllerEmail)
	if err != nil {
		if _, ok := AsError(err); ok {
			return nil, badRequest("school_audit.controller_users_failed")
		}
		return nil, err
	}
	return emails, nil
}

// ControllerAuditSummary aggregates the audits of every field worker under
// a controller.
func (s *Service) ControllerAuditSummary(ctx context.Context, controllerEmail, from, to string, meta RequestMeta) (Response, error) {
	if meta.Authorization == "" {
		return nil, fail(http.StatusUnauthorized, "error.authorization_required")
	}
	emails, err := s.controllerWorkers(ctx, controllerEmail)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		empty := tally(nil).summary()
		empty["completion_rate"] = 0
		empty["average_students_per_audit"] = 0
		empty["users_list"] = []string{}
		return Response{"message": M("school_audit.no_users_under_controller"), "summary": empty}, nil
	}

	f := db.SchoolAuditFilter{UserEmails: emails}
	if f.DayFrom, f.DayTo, err = dayRange(from, to); err != nil {
		return nil, err
	}
	audits, err := s.store.ListSchoolAudits(ctx, f)
	if err != nil {
		return nil, err
	}
	t := tally(audits)
	sum := t.summary()
	sum["active_users"] = len(t.users)
	sum["total_users_under_controller"] = len(emails)
	sum["users_list"] = sortedKeys(t.users)
	return Response{"controller_email": controllerEmail, "summary": sum}, nil
}

// ExportRequest selects the audits of an Excel export.
type ExportRequest struct {
	StartDate       string
	EndDate         string
	ControllerEmail string
	UserEmail       string
}

// ExportResult is a generated workbook.
type ExportResult struct {
	Filename string
	Data     []byte
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func exportRow(a *model.SchoolAudit, baseURL string) []any {
	row := []any{
		a.ID, a.AuditDate, a.UserEmail, a.SchoolName, a.City,
		float64(a.Location.Latitude), float64(a.Location.Longitude),
		clock.TimeOfDay(a.StartTimestamp), clock.TimeOfDay(a.EndTimestamp),
		a.SessionDurationMinutes, a.PromotersCount, studentsReached(a),
		a.BoostSachetsGiven, a.GiveawaysGiven, a.SessionsCompleted, a.TeacherCount,
	}
	for _, key := range []string{"session1", "session2", "session3"} {
		sess, ok := a.Sessions[key]
		enabled := ok && sess.Enabled
		var students any = ""
		winner, class := "", ""
		if enabled {
			students = sess.StudentsCount.Int()
			winner, class = sess.WinnerName, sess.WinnerClass
		}
		row = append(row,
			yesNo(enabled), students, winner, class,
			imageURLPtr(baseURL, sess.StartSelfie),
			imageURLPtr(baseURL, sess.EndSelfie),
			imageURLPtr(baseURL, sess.WinnerPhoto),
			imageURLPtr(baseURL, sess.SachetDistributionPhoto),
		)
	}
	return append(row,
		a.AuditorRemarks, a.Status,
		ImageURL(baseURL, a.StartImageFileID),
		ImageURL(baseURL, a.EndImageFileID),
		ImageURL(baseURL, a.AuditSheetImageFileID),
	)
}

// ExportAudits builds the Excel report for a date range. With a controller
// the export covers that controller's field workers, optionally narrowed to
// one of them.
func (s *Service) ExportAudits(ctx context.Context, req ExportRequest, meta RequestMeta) (*ExportResult, error) {
	if req.StartDate == "" || req.EndDate == "" {
		return nil, badRequest("school_audit.dates_required")
	}
	from, to, err := dayRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	f := db.SchoolAuditFilter{DayFrom: from, DayTo: to}
	switch {
	case req.ControllerEmail != "":
		if meta.Authorization == "" {
			return nil, fail(http.StatusUnauthorized, "error.authorization_required")
		}
		emails, err := s.controllerWorkers(ctx, req.ControllerEmail)
		if err != nil {
			return nil, err
		}
		if len(emails) == 0 {
			return nil, notFound("school_audit.no_export_data")
		}
		f.UserEmails = emails
		if req.UserEmail != "" && slices.Contains(emails, req.UserEmail) {
			f.UserEmails = []string{req.UserEmail}
		}
	case req.UserEmail != "":
		f.UserEmails = []string{req.UserEmail}
	}

	audits, err := s.store.ListSchoolAudits(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(audits) == 0 {
		return nil, notFound("school_audit.no_export_data")
	}

	rows := make([][]any, 0, len(audits))
	for i := range audits {
		rows = append(rows, exportRow(&audits[i], meta.BaseURL))
	}
	t := tally(audits)
	var buf bytes.Buffer
	err = report.WriteAudits(&buf, rows, report.Summary{
		Controller:      req.ControllerEmail,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		TotalAudits:     len(audits),
		TotalStudents:   t.students,
		TotalSachets:    t.sachets,
		CompletedAudits: t.completed,
	})
	if err != nil {
		logging.Errorf("export failed: %v", err)
		return nil, fail(http.StatusInternalServerError, "school_audit.export_failed", "Error", err.Error())
	}

	suffix := ""
	if req.ControllerEmail != "" {
		local, _, _ := strings.Cut(req.ControllerEmail, "@")
		suffix = "_" + local
	}
	return &ExportResult{
		Filename: "school_audits_complete" + suffix + "_" + req.StartDate + "_" + req.EndDate + ".xlsx",
		Data:     buf.Bytes(),
	}, nil
}
