// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"net/http"
	"testing"

	"github.com/fieldops/fieldaudit/internal/auth"
	"github.com/fieldops/fieldaudit/internal/model"
)

func TestMigrateLegacyAudits(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	legacy := &model.SchoolAudit{
		UserEmail:      "fw@example.com",
		SchoolName:     "Old School",
		City:           "Pune",
		AuditDate:      "01 Feb 2025",
		AuditDay:       "2025-02-01",
		Status:         model.StatusCompleted,
		LegacyStudents: [3]int{30, 0, 12},
		LegacyWinners:  [3]string{"Ravi", "", "Meena"},
		CreatedAt:      testNow.AddDate(0, -1, 0),
	}
	if err := s.Store().InsertSchoolAudit(ctx, legacy); err != nil {
		t.Fatalf("InsertSchoolAudit: %v", err)
	}
	startAudit(t, s)

	resp, err := s.MigrateLegacyAudits(ctx)
	if err != nil {
		t.Fatalf("MigrateLegacyAudits: %v", err)
	}
	if resp["migrated_count"] != 1 {
		t.Fatalf("migrated_count = %v", resp["migrated_count"])
	}

	got, err := s.Store().GetSchoolAudit(ctx, legacy.ID)
	if err != nil {
		t.Fatalf("GetSchoolAudit: %v", err)
	}
	if got.TotalStudents == nil || *got.TotalStudents != 42 || got.MigrationVersion != MigrationVersion {
		t.Fatalf("unexpected migrated audit: %+v", got)
	}
	if len(got.Sessions) != 2 {
		t.Fatalf("sessions = %v", got.Sessions)
	}
	s3 := got.Sessions["session3"]
	if !s3.Enabled || s3.Name != "Class 9+" || s3.StudentsCount.Int() != 12 || s3.WinnerName != "Meena" {
		t.Fatalf("unexpected session3: %+v", s3)
	}

	again, err := s.MigrateLegacyAudits(ctx)
	if err != nil || again["migrated_count"] != 0 {
		t.Fatalf("second run: %v, %v", again, err)
	}
}

func TestConvertSharePointURLs(t *testing.T) {
	ctx := context.Background()
	s, drive := newTestService(t)
	const (
		startLink = "https://contoso.sharepoint.com/:i:/g/start"
		endLink   = "https://contoso.sharepoint.com/:i:/g/end"
	)
	drive.shares[startLink] = "DRIVEITEM1"
	a := &model.SchoolAudit{
		UserEmail:             "fw@example.com",
		SchoolName:            "Govt School",
		City:                  "Pune",
		Status:                model.StatusCompleted,
		StartImageFileID:      startLink,
		EndImageFileID:        endLink,
		AuditSheetImageFileID: "PLAINID",
		CreatedAt:             testNow,
	}
	if err := s.Store().InsertSchoolAudit(ctx, a); err != nil {
		t.Fatalf("InsertSchoolAudit: %v", err)
	}

	resp, err := s.ConvertSharePointURLs(ctx)
	if err != nil {
		t.Fatalf("ConvertSharePointURLs: %v", err)
	}
	if resp["converted_count"] != 1 || resp["failed_count"] != 1 || resp["total_processed"] != 1 {
		t.Fatalf("unexpected counts: %v", resp)
	}
	got, err := s.Store().GetSchoolAudit(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetSchoolAudit: %v", err)
	}
	if got.StartImageFileID != "DRIVEITEM1" || got.EndImageFileID != endLink || got.AuditSheetImageFileID != "PLAINID" {
		t.Fatalf("unexpected image ids: %+v", got)
	}
	if got.OriginalImageURLs["start_image_file_id"] != startLink {
		t.Fatalf("original urls = %v", got.OriginalImageURLs)
	}

	noDrive := NewService(s.Store(), auth.NewManager("test-secret"))
	_, err = noDrive.ConvertSharePointURLs(ctx)
	wantError(t, err, http.StatusInternalServerError, "school_audit.sharepoint_failed")
}
