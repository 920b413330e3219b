// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"net/http"
	"strings"

	"github.com/fieldops/fieldaudit/internal/logging"
	"github.com/fieldops/fieldaudit/internal/model"
)

// MigrationVersion tags audits converted to the sessions layout.
const MigrationVersion = "2.0"

var legacySessions = []struct{ key, name string }{
	{"session1", "Class 1-5"},
	{"session2", "Class 6-8"},
	{"session3", "Class 9+"},
}

// MigrateLegacyAudits moves per-session counters of old audits into the
// sessions document.
func (s *Service) MigrateLegacyAudits(ctx context.Context) (Response, error) {
	audits, err := s.store.ListLegacySchoolAudits(ctx)
	if err != nil {
		logging.Errorf("legacy audit scan failed: %v", err)
		return nil, fail(http.StatusInternalServerError, "school_audit.migration_failed")
	}
	now := s.clockNow().UTC()
	migrated := 0
	for i := range audits {
		a := &audits[i]
		sessions := map[string]model.Session{}
		total := 0
		for n, ls := range legacySessions {
			students := a.LegacyStudents[n]
			total += students
			if students == 0 {
				continue
			}
			sessions[ls.key] = model.Session{
				Enabled:       true,
				Name:          ls.name,
				StudentsCount: model.Count(students),
				WinnerName:    a.LegacyWinners[n],
			}
		}
		a.Sessions = sessions
		a.TotalStudents = &total
		a.MigratedAt = now
		a.MigrationVersion = MigrationVersion
		if err := s.store.UpdateSchoolAudit(ctx, a); err != nil {
			logging.Errorf("could not migrate audit %s: %v", a.ID, err)
			return nil, fail(http.StatusInternalServerError, "school_audit.migration_failed")
		}
		migrated++
	}
	logging.Infof("migrated %d legacy audit(s)", migrated)
	return Response{
		"message":        M("school_audit.migrated", "Count", migrated),
		"migrated_count": migrated,
	}, nil
}

// ConvertSharePointURLs replaces SharePoint sharing links stored as main
// image references with drive file ids. Original links are kept.
func (s *Service) ConvertSharePointURLs(ctx context.Context) (Response, error) {
	if s.images == nil {
		logging.Errorf("sharepoint conversion: %v", errNoImageStore)
		return nil, fail(http.StatusInternalServerError, "school_audit.sharepoint_failed")
	}
	audits, err := s.store.ListSchoolAuditsWithSharingURLs(ctx)
	if err != nil {
		logging.Errorf("sharepoint scan failed: %v", err)
		return nil, fail(http.StatusInternalServerError, "school_audit.sharepoint_failed")
	}
	converted, failed := 0, 0
	for i := range audits {
		a := &audits[i]
		fields := []struct {
			name string
			ref  *string
		}{
			{"start_image_file_id", &a.StartImageFileID},
			{"end_image_file_id", &a.EndImageFileID},
			{"audit_sheet_image_file_id", &a.AuditSheetImageFileID},
		}
		changed := false
		for _, f := range fields {
			if !strings.Contains(*f.ref, "sharepoint.com") {
				continue
			}
			it, err := s.images.ResolveSharingURL(ctx, *f.ref)
			if err != nil || it == nil || it.ID == "" {
				logging.Warnf("could not resolve %s of audit %s: %v", f.name, a.ID, err)
				failed++
				continue
			}
			if a.OriginalImageURLs == nil {
				a.OriginalImageURLs = map[string]string{}
			}
			a.OriginalImageURLs[f.name] = *f.ref
			*f.ref = it.ID
			converted++
			changed = true
		}
		if !changed {
			continue
		}
		if err := s.store.UpdateSchoolAudit(ctx, a); err != nil {
			logging.Errorf("could not store converted ids of audit %s: %v", a.ID, err)
			return nil, fail(http.StatusInternalServerError, "school_audit.sharepoint_failed")
		}
	}
	return Response{
		"message":         M("school_audit.sharepoint_converted"),
		"converted_count": converted,
		"failed_count":    failed,
		"total_processed": len(audits),
	}, nil
}
