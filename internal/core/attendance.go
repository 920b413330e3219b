// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fieldops/fieldaudit/internal/clock"
	"github.com/fieldops/fieldaudit/internal/db"
	"github.com/fieldops/fieldaudit/internal/logging"
	"github.com/fieldops/fieldaudit/internal/model"
)

var mysteryRequired = []string{"latitude", "longitude", "image", "timestamp", "user_email", "audit_type", "evaluations", "cityName"}

// RequiredEvaluationFields must be present and non-blank in every staff
// evaluation.
var RequiredEvaluationFields = []string{
	"storeCode", "outletName", "promoterName", "groomingCompliance",
	"greetingEngagement", "productKnowledge", "communicationSkills",
	"salesClosingSkills", "handlingObjections", "crossSelling",
	"explainingOffers", "otherObservations",
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// SubmitMysteryAudit validates and stores a mystery audit. A failed photo
// upload is recorded but does not fail the submission.
func (s *Service) SubmitMysteryAudit(ctx context.Context, p Payload) (Response, error) {
	if len(p) == 0 {
		return nil, badRequest("attendance.no_data")
	}
	var missing []string
	for _, f := range mysteryRequired {
		v, ok := p[f]
		switch {
		case !ok:
			missing = append(missing, f)
		case v == nil:
			missing = append(missing, f+" (null)")
		case f != "evaluations" && v == "":
			missing = append(missing, f+" (empty)")
		}
	}
	if len(missing) > 0 {
		return nil, badRequest("attendance.missing_fields", "Fields", pyList(missing))
	}

	auditType := strings.ToLower(strings.TrimSpace(p.Str("audit_type")))
	if auditType != model.AuditTypeMystery {
		return nil, badRequest("attendance.invalid_audit_type", "AuditType", auditType)
	}

	rawEvals, _ := p["evaluations"].([]any)
	if len(rawEvals) == 0 {
		return nil, badRequest("attendance.evaluation_required")
	}
	evals := make([]model.Evaluation, 0, len(rawEvals))
	for i, re := range rawEvals {
		ev, _ := re.(map[string]any)
		for _, f := range RequiredEvaluationFields {
			v := ev[f]
			if !truthy(v) || strings.TrimSpace(asString(v)) == "" {
				return nil, badRequest("attendance.evaluation_missing_field", "Index", i+1, "Field", f)
			}
		}
		evals = append(evals, model.Evaluation(ev))
	}

	ts, ok := p["timestamp"].(string)
	if !ok {
		return nil, badRequest("attendance.invalid_timestamp")
	}
	local, err := clock.ParseClientTimestampLenient(ts)
	if err != nil {
		return nil, badRequest("attendance.invalid_timestamp")
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
	display := clock.Display(local)
	filename := fmt.Sprintf("mystery_audit_%s_%s.jpg", email, local.Format("20060102_150405"))
	imageURL := ""
	if it, err := s.upload(ctx, p.Str("image"), filename); err != nil {
		logging.Warnf("mystery audit photo upload failed for %s: %v", email, err)
		imageURL = failedRef(err)
	} else {
		imageURL = it.WebURL
	}

	a := &model.MysteryAudit{
		UserEmail:   email,
		AuditType:   model.AuditTypeMystery,
		Location:    model.Location{Latitude: model.Coordinate(lat), Longitude: model.Coordinate(lng)},
		ImageURL:    imageURL,
		Timestamp:   display,
		CityName:    p.Str("cityName"),
		Evaluations: evals,
		StaffCount:  len(evals),
		CreatedAt:   s.clockNow().UTC(),
		Status:      model.StatusCompleted,
	}
	if err := s.store.InsertMysteryAudit(ctx, a); err != nil {
		return nil, fmt.Errorf("store mystery audit: %w", err)
	}
	logging.Infof("mystery audit %s stored for %s with %d evaluation(s)", a.ID, email, len(evals))

	failed := strings.HasPrefix(imageURL, model.UploadFailedPrefix)
	resp := Response{
		"message":          M("attendance.submitted", "Count", len(evals)),
		"audit_type":       model.AuditTypeMystery,
		"timestamp":        display,
		"record_id":        a.ID,
		"staff_count":      len(evals),
		"evaluations":      len(evals),
		"image_url":        imageURL,
		"storage_provider": "OneDrive",
		"cityName":         a.CityName,
	}
	if failed {
		resp["image_url"] = nil
		resp["storage_provider"] = "Local/Error"
	}
	return resp, nil
}

// MysteryAuditImage returns the stored photo link of a mystery audit.
func (s *Service) MysteryAuditImage(ctx context.Context, id string) (Response, error) {
	a, err := s.store.GetMysteryAudit(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("attendance.record_not_found")
	}
	if err != nil {
		return nil, err
	}
	storage := "Local/Other"
	if strings.Contains(strings.ToLower(a.ImageURL), "onedrive") {
		storage = "OneDrive"
	}
	return Response{
		"record_id":    a.ID,
		"image_url":    a.ImageURL,
		"user_email":   a.UserEmail,
		"timestamp":    a.Timestamp,
		"audit_type":   a.AuditType,
		"staff_count":  a.StaffCount,
		"storage_type": storage,
	}, nil
}

// ListMysteryAudits pages through a user's audits, newest first.
func (s *Service) ListMysteryAudits(ctx context.Context, email string, page, limit int) (Response, error) {
	if page < 1 || limit < 1 {
		return nil, badRequest("attendance.invalid_pagination")
	}
	skip := (page - 1) * limit
	audits, err := s.store.ListMysteryAudits(ctx, email, skip, limit)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.MysteryAuditStats(ctx, email, time.Time{})
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(audits))
	for i := range audits {
		out = append(out, toMap(&audits[i]))
	}
	return Response{
		"audits":      out,
		"total_count": stats.Total,
		"page":        page,
		"limit":       limit,
		"has_more":    skip+limit < stats.Total,
	}, nil
}

// MysteryAuditStats summarises a user's audits. "This month" starts on the
// first day of the current UTC month.
func (s *Service) MysteryAuditStats(ctx context.Context, email string) (Response, error) {
	now := s.clockNow().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	st, err := s.store.MysteryAuditStats(ctx, email, monthStart)
	if err != nil {
		return nil, err
	}
	avg := 0.0
	if st.Total > 0 {
		avg = round1(float64(st.StaffSum) / float64(st.Total))
	}
	return Response{
		"total_audits":            st.Total,
		"this_month":              st.SinceCount,
		"total_staff_evaluated":   st.StaffSum,
		"average_staff_per_audit": avg,
	}, nil
}
