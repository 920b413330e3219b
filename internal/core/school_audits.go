// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fieldops/fieldaudit/internal/clock"
	"github.com/fieldops/fieldaudit/internal/db"
	"github.com/fieldops/fieldaudit/internal/logging"
	"github.com/fieldops/fieldaudit/internal/model"
)

var (
	startAuditRequired = []string{"latitude", "longitude", "school_name", "city", "start_image", "timestamp", "user_email", "promoters_count", "sessions"}
	endAuditRequired   = []string{"audit_id", "end_image", "timestamp", "sessions_completed", "teacher_count", "auditor_remarks"}
)

// StartAudit opens a school activation audit.
func (s *Service) StartAudit(ctx context.Context, p Payload) (Response, error) {
	if missing := missingFields(p, startAuditRequired); len(missing) > 0 {
		return nil, badRequest("school_audit.missing_fields", "Fields", pyList(missing))
	}
	sessions, err := parseSessions(p["sessions"])
	if err != nil {
		return nil, err
	}
	if enabledCount(sessions) == 0 {
		return nil, badRequest("school_audit.session_required")
	}
	local, err := clock.ParseClientTimestamp(p.Str("timestamp"))
	if err != nil {
		return nil, badRequest("school_audit.invalid_timestamp")
	}
	promoters, err := p.Int("promoters_count", 0)
	if err != nil {
		return nil, err
	}
	sachets, err := p.Int("boost_sachets_given", 0)
	if err != nil {
		return nil, err
	}
	lat, err := asFloat(p["latitude"])
	if err != nil {
		return nil, badRequest("error.invalid_number", "Field", "latitude")
	}
	lng, err := asFloat(p["longitude"])
	if err != nil {
		return nil, badRequest("error.invalid_number", "Field", "longitude")
	}

	email := p.Str("user_email")
	school := p.Str("school_name")
	city := p.Str("city")
	auditDate := clock.AuditDate(local)

	_, err = s.store.FindInProgressAudit(ctx, email, school, city, auditDate)
	switch {
	case err == nil:
		return nil, badRequest("school_audit.already_in_progress")
	case !errors.Is(err, db.ErrNotFound):
		return nil, err
	}

	startRef := s.uploadFileID(ctx, p.Str("start_image"), s.uniqueFilename(email, "audit_start"))
	if startRef == "" {
		return nil, fail(http.StatusInternalServerError, "school_audit.start_upload_failed")
	}

	stored, total := s.processSessions(ctx, sessions, email)
	a := &model.SchoolAudit{
		UserEmail:         email,
		SchoolName:        school,
		City:              city,
		Location:          model.Location{Latitude: model.Coordinate(lat), Longitude: model.Coordinate(lng)},
		StartTimestamp:    clock.Display(local),
		AuditDate:         auditDate,
		AuditDay:          clock.Day(local),
		StartImageFileID:  startRef,
		PromotersCount:    promoters,
		BoostSachetsGiven: sachets,
		GiveawaysGiven:    p.Str("giveaways_given"),
		Sessions:          stored,
		TotalStudents:     &total,
		Status:            model.StatusInProgress,
		CreatedAt:         local.UTC(),
	}
	if sheet := p.Str("audit_sheet_image"); sheet != "" {
		a.AuditSheetImageFileID = s.uploadFileID(ctx, sheet, s.uniqueFilename(email, "audit_sheet"))
	}
	if err := s.store.InsertSchoolAudit(ctx, a); err != nil {
		return nil, fmt.Errorf("store school audit: %w", err)
	}
	logging.Infof("school audit %s started by %s at %s (%s)", a.ID, email, school, city)

	return Response{
		"message":          M("school_audit.started"),
		"audit_id":         a.ID,
		"school_name":      school,
		"start_time":       a.StartTimestamp,
		"total_students":   total,
		"sessions_enabled": len(stored),
	}, nil
}

// EndAudit completes an in-progress audit.
func (s *Service) EndAudit(ctx context.Context, p Payload) (Response, error) {
	if missing := missingFields(p, endAuditRequired); len(missing) > 0 {
		return nil, badRequest("school_audit.missing_fields", "Fields", pyList(missing))
	}
	a, err := s.store.GetSchoolAudit(ctx, p.Str("audit_id"))
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("school_audit.not_found")
	}
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusInProgress {
		return nil, badRequest("school_audit.not_in_progress")
	}
	local, err := clock.ParseClientTimestamp(p.Str("timestamp"))
	if err != nil {
		return nil, badRequest("school_audit.invalid_timestamp")
	}
	completed, err := p.Int("sessions_completed", 0)
	if err != nil {
		return nil, err
	}
	teachers, err := p.Int("teacher_count", 0)
	if err != nil {
		return nil, err
	}

	endRef := s.uploadFileID(ctx, p.Str("end_image"), s.uniqueFilename(a.UserEmail, "audit_end"))
	if endRef == "" {
		return nil, fail(http.StatusInternalServerError, "school_audit.end_upload_failed")
	}

	a.EndTimestamp = clock.Display(local)
	a.EndImageFileID = endRef
	a.SessionsCompleted = completed
	a.TeacherCount = teachers
	a.AuditorRemarks = p.Str("auditor_remarks")
	a.SessionDurationMinutes = clock.DurationMinutes(a.CreatedAt, local)
	a.Status = model.StatusCompleted
	a.CompletedAt = local.UTC()
	if err := s.store.UpdateSchoolAudit(ctx, a); err != nil {
		logging.Errorf("could not complete audit %s: %v", a.ID, err)
		return nil, fail(http.StatusInternalServerError, "school_audit.update_failed")
	}

	return Response{
		"message":          M("school_audit.completed"),
		"audit_id":         a.ID,
		"school_name":      a.SchoolName,
		"duration_minutes": a.SessionDurationMinutes,
		"end_time":         a.EndTimestamp,
	}, nil
}

// dayRange normalizes an optional from/to pair. Both bounds must be given
// for the range to apply.
func dayRange(from, to string) (string, string, error) {
	if from == "" || to == "" {
		return "", "", nil
	}
	f, err := clock.NormalizeDay(from)
	if err != nil {
		return "", "", badRequest("school_audit.invalid_date")
	}
	t, err := clock.NormalizeDay(to)
	if err != nil {
		return "", "", badRequest("school_audit.invalid_date")
	}
	return f, t, nil
}

// ListAudits returns a user's audits, newest first. status "all" or ""
// does not filter.
func (s *Service) ListAudits(ctx context.Context, email, status, from, to, baseURL string) (Response, error) {
	f := db.SchoolAuditFilter{UserEmails: []string{email}}
	if status != "" && status != "all" {
		f.Status = status
	}
	var err error
	if f.DayFrom, f.DayTo, err = dayRange(from, to); err != nil {
		return nil, err
	}
	audits, err := s.store.ListSchoolAudits(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(audits))
	for i := range audits {
		out = append(out, formatAudit(&audits[i], baseURL))
	}
	return Response{"audits": out, "user_email": email, "total_count": len(out)}, nil
}

// CurrentAudit returns the user's in-progress audit of today, if any.
func (s *Service) CurrentAudit(ctx context.Context, email, baseURL string) (Response, error) {
	a, err := s.store.FindCurrentAudit(ctx, email, clock.AuditDate(s.clockNow()))
	if errors.Is(err, db.ErrNotFound) {
		return Response{"message": M("school_audit.no_audit_in_progress"), "current_audit": nil}, nil
	}
	if err != nil {
		return nil, err
	}
	return Response{"current_audit": formatAudit(a, baseURL), "user_email": email}, nil
}

// loadTodaysAudit fetches an audit that may still be changed. denied is the
// message used when the audit is from another day.
func (s *Service) loadTodaysAudit(ctx context.Context, id, denied string) (*model.SchoolAudit, error) {
	a, err := s.store.GetSchoolAudit(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("school_audit.not_found")
	}
	if err != nil {
		return nil, err
	}
	if a.AuditDate != clock.AuditDate(s.clockNow()) {
		return nil, fail(http.StatusForbidden, denied)
	}
	return a, nil
}

var (
	editableIntFields = map[string]bool{
		"promoters_count": true, "boost_sachets_given": true,
		"sessions_completed": true, "teacher_count": true,
	}
	editableFields = []string{
		"school_name", "city", "promoters_count", "boost_sachets_given",
		"giveaways_given", "sessions_completed", "teacher_count", "auditor_remarks",
	}
	editableImages = []struct{ field, column, kind string }{
		{"start_image", "start_image_file_id", "audit_start_updated"},
		{"end_image", "end_image_file_id", "audit_end_updated"},
		{"audit_sheet_image", "audit_sheet_image_file_id", "audit_sheet_updated"},
	}
)

func setAuditField(a *model.SchoolAudit, field string, v any) {
	switch field {
	case "school_name":
		a.SchoolName = v.(string)
	case "city":
		a.City = v.(string)
	case "giveaways_given":
		a.GiveawaysGiven = v.(string)
	case "auditor_remarks":
		a.AuditorRemarks = v.(string)
	case "promoters_count":
		a.PromotersCount = v.(int)
	case "boost_sachets_given":
		a.BoostSachetsGiven = v.(int)
	case "sessions_completed":
		a.SessionsCompleted = v.(int)
	case "teacher_count":
		a.TeacherCount = v.(int)
	case "start_image_file_id":
		a.StartImageFileID = v.(string)
	case "end_image_file_id":
		a.EndImageFileID = v.(string)
	case "audit_sheet_image_file_id":
		a.AuditSheetImageFileID = v.(string)
	}
}

// EditAudit updates today's audit and records an EDIT log entry with the
// original document.
func (s *Service) EditAudit(ctx context.Context, id string, p Payload, meta RequestMeta) (Response, error) {
	a, err := s.loadTodaysAudit(ctx, id, "school_audit.edit_only_today")
	if err != nil {
		return nil, err
	}
	original := *a

	updates := map[string]any{}
	var keys []string
	set := func(k string, v any) {
		updates[k] = v
		keys = append(keys, k)
	}
	for _, f := range editableFields {
		if _, ok := p[f]; !ok {
			continue
		}
		if editableIntFields[f] {
			n, err := p.Int(f, 0)
			if err != nil {
				return nil, err
			}
			set(f, n)
			setAuditField(a, f, n)
			continue
		}
		v := p.Str(f)
		set(f, v)
		setAuditField(a, f, v)
	}
	if _, ok := p["sessions"]; ok {
		in, err := parseSessions(p["sessions"])
		if err != nil {
			return nil, err
		}
		stored, total := s.processSessions(ctx, in, a.UserEmail)
		a.Sessions = stored
		a.TotalStudents = &total
		set("sessions", stored)
		set("total_students", total)
	}
	for _, img := range editableImages {
		data := p.Str(img.field)
		if data == "" {
			continue
		}
		ref := s.uploadFileID(ctx, data, s.uniqueFilename(a.UserEmail, img.kind))
		set(img.column, ref)
		setAuditField(a, img.column, ref)
	}
	if len(keys) == 0 {
		return nil, badRequest("school_audit.no_fields_to_update")
	}

	now := s.clockNow()
	a.LastModifiedAt = now.UTC()
	a.LastModifiedBy = a.UserEmail
	set("last_modified_at", now.In(clock.IST).Format(time.RFC3339Nano))
	set("last_modified_by", a.UserEmail)

	if err := s.store.UpdateSchoolAudit(ctx, a); err != nil {
		logging.Errorf("could not update audit %s: %v", a.ID, err)
		return nil, fail(http.StatusInternalServerError, "school_audit.update_failed")
	}
	entry := &model.AuditLogEntry{
		Action:        model.ActionEdit,
		AuditID:       a.ID,
		OriginalData:  &original,
		UpdatedFields: updates,
		PerformedBy:   a.UserEmail,
		PerformedAt:   now.UTC(),
		IPAddress:     meta.RemoteAddr,
		UserAgent:     meta.UserAgent,
		SchoolName:    original.SchoolName,
		AuditDate:     original.AuditDate,
	}
	if err := s.store.InsertAuditLog(ctx, entry); err != nil {
		logging.Warnf("audit %s updated but the edit log was not written: %v", a.ID, err)
	}

	return Response{
		"message":        M("school_audit.updated"),
		"audit_id":       a.ID,
		"updated_audit":  formatAudit(a, meta.BaseURL),
		"updated_fields": keys,
	}, nil
}

// DeleteAudit removes today's audit after logging a recoverable copy.
func (s *Service) DeleteAudit(ctx context.Context, id, reason string, meta RequestMeta) (Response, error) {
	if reason == "" {
		reason = "No reason provided"
	}
	a, err := s.loadTodaysAudit(ctx, id, "school_audit.delete_only_today")
	if err != nil {
		return nil, err
	}
	entry := &model.AuditLogEntry{
		Action:           model.ActionDelete,
		AuditID:          a.ID,
		DeletedAuditData: a,
		DeletionReason:   reason,
		PerformedBy:      a.UserEmail,
		PerformedAt:      s.clockNow().UTC(),
		IPAddress:        meta.RemoteAddr,
		UserAgent:        meta.UserAgent,
		SchoolName:       a.SchoolName,
		AuditDate:        a.AuditDate,
		Recoverable:      true,
	}
	if err := s.store.InsertAuditLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("log deletion of %s: %w", a.ID, err)
	}
	if err := s.store.DeleteSchoolAudit(ctx, a.ID); err != nil {
		logging.Errorf("could not delete audit %s: %v", a.ID, err)
		return nil, fail(http.StatusInternalServerError, "school_audit.delete_failed")
	}
	logging.Infof("audit %s deleted by %s: %s", a.ID, a.UserEmail, reason)
	return Response{
		"message":         M("school_audit.deleted"),
		"audit_id":        a.ID,
		"school_name":     a.SchoolName,
		"deletion_logged": true,
	}, nil
}

// AuditLogs lists edit and delete entries performed by a user, newest
// first. Full deleted documents are replaced by a short summary.
func (s *Service) AuditLogs(ctx context.Context, email, action, from, to string, limit int) (Response, error) {
	f := db.AuditLogFilter{PerformedBy: email, Limit: limit}
	if action != "" && !strings.EqualFold(action, "all") {
		f.Action = action
	}
	if from != "" && to != "" {
		var err error
		if f.From, err = clock.ParseClientTimestamp(from); err != nil {
			return nil, badRequest("school_audit.invalid_date")
		}
		if f.To, err = clock.ParseClientTimestamp(to); err != nil {
			return nil, badRequest("school_audit.invalid_date")
		}
	}
	entries, err := s.store.ListAuditLogs(ctx, f)
	if err != nil {
		return nil, err
	}
	logs := make([]map[string]any, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		m := toMap(e)
		m["performed_at"] = isoTime(e.PerformedAt.In(clock.IST))
		if d := e.DeletedAuditData; d != nil {
			students := 0
			if d.TotalStudents != nil {
				students = *d.TotalStudents
			}
			m["deleted_audit_summary"] = map[string]any{
				"school_name":    d.SchoolName,
				"city":           d.City,
				"audit_date":     d.AuditDate,
				"status":         d.Status,
				"students_total": students,
			}
			delete(m, "deleted_audit_data")
		}
		logs = append(logs, m)
	}
	return Response{"logs": logs, "user_email": email, "total_count": len(logs)}, nil
}
