// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func evaluation() map[string]any {
	m := map[string]any{}
	for _, f := range RequiredEvaluationFields {
		m[f] = "ok"
	}
	return m
}

func mysteryPayload() Payload {
	return Payload{
		"latitude":    12.97,
		"longitude":   "77.59",
		"image":       "data:image/jpeg;base64," + testImage,
		"timestamp":   "2025-03-10T10:15:00",
		"user_email":  "fw@example.com",
		"audit_type":  " Mystery_Audit ",
		"evaluations": []any{evaluation(), evaluation()},
		"cityName":    "Pune",
	}
}

func TestSubmitMysteryAudit(t *testing.T) {
	ctx := context.Background()
	s, drive := newTestService(t)

	resp, err := s.SubmitMysteryAudit(ctx, mysteryPayload())
	if err != nil {
		t.Fatalf("SubmitMysteryAudit: %v", err)
	}
	if resp["staff_count"] != 2 || resp["storage_provider"] != "OneDrive" {
		t.Fatalf("unexpected response: %v", resp)
	}
	if resp["timestamp"] != "10 Mar 2025, 10:15 AM IST" {
		t.Fatalf("timestamp = %v", resp["timestamp"])
	}
	if len(drive.names) != 1 || drive.names[0] != "2025/03-March/mystery_audit_fw@example.com_20250310_101500.jpg" {
		t.Fatalf("uploaded as %v", drive.names)
	}

	img, err := s.MysteryAuditImage(ctx, resp["record_id"].(string))
	if err != nil {
		t.Fatalf("MysteryAuditImage: %v", err)
	}
	if img["storage_type"] != "OneDrive" || !strings.HasPrefix(img["image_url"].(string), "https://onedrive.live.com/") {
		t.Fatalf("unexpected image info: %v", img)
	}
	_, err = s.MysteryAuditImage(ctx, "missing")
	wantError(t, err, http.StatusNotFound, "attendance.record_not_found")
}

func TestSubmitMysteryAuditKeepsFailedUpload(t *testing.T) {
	ctx := context.Background()
	s, drive := newTestService(t)
	drive.failUpload = true

	resp, err := s.SubmitMysteryAudit(ctx, mysteryPayload())
	if err != nil {
		t.Fatalf("SubmitMysteryAudit: %v", err)
	}
	if resp["image_url"] != nil || resp["storage_provider"] != "Local/Error" {
		t.Fatalf("unexpected response: %v", resp)
	}
	img, err := s.MysteryAuditImage(ctx, resp["record_id"].(string))
	if err != nil {
		t.Fatalf("MysteryAuditImage: %v", err)
	}
	if !strings.HasPrefix(img["image_url"].(string), "UPLOAD_FAILED: ") || img["storage_type"] != "Local/Other" {
		t.Fatalf("unexpected image info: %v", img)
	}
}

func TestSubmitMysteryAuditValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	_, err := s.SubmitMysteryAudit(ctx, Payload{"latitude": nil, "image": "", "cityName": "Pune"})
	e := wantError(t, err, http.StatusBadRequest, "attendance.missing_fields")
	want := "['latitude (null)', 'longitude', 'image (empty)', 'timestamp', 'user_email', 'audit_type', 'evaluations']"
	if e.Msg.Data["Fields"] != want {
		t.Fatalf("Fields = %v", e.Msg.Data["Fields"])
	}

	p := mysteryPayload()
	p["audit_type"] = "store_visit"
	_, err = s.SubmitMysteryAudit(ctx, p)
	wantError(t, err, http.StatusBadRequest, "attendance.invalid_audit_type")

	p = mysteryPayload()
	p["evaluations"] = []any{}
	_, err = s.SubmitMysteryAudit(ctx, p)
	wantError(t, err, http.StatusBadRequest, "attendance.evaluation_required")

	bad := evaluation()
	bad["crossSelling"] = "   "
	p = mysteryPayload()
	p["evaluations"] = []any{evaluation(), bad}
	_, err = s.SubmitMysteryAudit(ctx, p)
	e = wantError(t, err, http.StatusBadRequest, "attendance.evaluation_missing_field")
	if e.Msg.Data["Index"] != 2 || e.Msg.Data["Field"] != "crossSelling" {
		t.Fatalf("unexpected data: %v", e.Msg.Data)
	}

	p = mysteryPayload()
	p["timestamp"] = "yesterday"
	_, err = s.SubmitMysteryAudit(ctx, p)
	wantError(t, err, http.StatusBadRequest, "attendance.invalid_timestamp")

	p = mysteryPayload()
	p["timestamp"] = "2025-03-10 09:00:00.123456"
	if _, err := s.SubmitMysteryAudit(ctx, p); err != nil {
		t.Fatalf("lenient timestamp rejected: %v", err)
	}
}

func TestMysteryListAndStats(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	for i := 0; i < 3; i++ {
		p := mysteryPayload()
		if i == 2 {
			p["evaluations"] = []any{evaluation()}
		}
		if _, err := s.SubmitMysteryAudit(ctx, p); err != nil {
			t.Fatalf("SubmitMysteryAudit: %v", err)
		}
	}

	page, err := s.ListMysteryAudits(ctx, "fw@example.com", 1, 2)
	if err != nil {
		t.Fatalf("ListMysteryAudits: %v", err)
	}
	if page["total_count"] != 3 || page["has_more"] != true || len(page["audits"].([]map[string]any)) != 2 {
		t.Fatalf("unexpected page: %v", page)
	}
	_, err = s.ListMysteryAudits(ctx, "fw@example.com", 0, 10)
	wantError(t, err, http.StatusBadRequest, "attendance.invalid_pagination")

	stats, err := s.MysteryAuditStats(ctx, "fw@example.com")
	if err != nil {
		t.Fatalf("MysteryAuditStats: %v", err)
	}
	if stats["total_audits"] != 3 || stats["total_staff_evaluated"] != 5 || stats["average_staff_per_audit"] != 1.7 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}
