// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"time"

	"github.com/fieldops/fieldaudit/internal/model"
	"github.com/uptrace/bun"
)

// bunStore implements Store on top of a *bun.DB. The engine specific stores
// embed it and only differ in how they were opened.
type bunStore struct {
	bun *bun.DB
}

// BunDB returns the underlying *bun.DB.
func (s *bunStore) BunDB() *bun.DB { return s.bun }

func (s *bunStore) CreateUser(ctx context.Context, u *model.User) error {
	return CreateUserBun(ctx, s.bun, u)
}

func (s *bunStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return GetUserByEmailBun(ctx, s.bun, email)
}

func (s *bunStore) UpdateUserPassword(ctx context.Context, email, passwordHash string) error {
	return UpdateUserPasswordBun(ctx, s.bun, email, passwordHash)
}

func (s *bunStore) ListFieldWorkers(ctx context.Context, controllerEmail string) ([]model.User, error) {
	return ListFieldWorkersBun(ctx, s.bun, controllerEmail)
}

func (s *bunStore) InsertMysteryAudit(ctx context.Context, a *model.MysteryAudit) error {
	return InsertMysteryAuditBun(ctx, s.bun, a)
}

func (s *bunStore) GetMysteryAudit(ctx context.Context, id string) (*model.MysteryAudit, error) {
	return GetMysteryAuditBun(ctx, s.bun, id)
}

func (s *bunStore) ListMysteryAudits(ctx context.Context, userEmail string, offset, limit int) ([]model.MysteryAudit, error) {
	return ListMysteryAuditsBun(ctx, s.bun, userEmail, offset, limit)
}

func (s *bunStore) MysteryAuditStats(ctx context.Context, userEmail string, since time.Time) (MysteryStats, error) {
	return MysteryAuditStatsBun(ctx, s.bun, userEmail, since)
}

func (s *bunStore) InsertSchoolAudit(ctx context.Context, a *model.SchoolAudit) error {
	return InsertSchoolAuditBun(ctx, s.bun, a)
}

func (s *bunStore) GetSchoolAudit(ctx context.Context, id string) (*model.SchoolAudit, error) {
	return GetSchoolAuditBun(ctx, s.bun, id)
}

func (s *bunStore) UpdateSchoolAudit(ctx context.Context, a *model.SchoolAudit) error {
	return UpdateSchoolAuditBun(ctx, s.bun, a)
}

func (s *bunStore) DeleteSchoolAudit(ctx context.Context, id string) error {
	return DeleteSchoolAuditBun(ctx, s.bun, id)
}

func (s *bunStore) FindInProgressAudit(ctx context.Context, userEmail, schoolName, city, auditDate string) (*model.SchoolAudit, error) {
	return FindInProgressAuditBun(ctx, s.bun, userEmail, schoolName, city, auditDate)
}

func (s *bunStore) FindCurrentAudit(ctx context.Context, userEmail, auditDate string) (*model.SchoolAudit, error) {
	return FindCurrentAuditBun(ctx, s.bun, userEmail, auditDate)
}

func (s *bunStore) ListSchoolAudits(ctx context.Context, f SchoolAuditFilter) ([]model.SchoolAudit, error) {
	return ListSchoolAuditsBun(ctx, s.bun, f)
}

func (s *bunStore) ListLegacySchoolAudits(ctx context.Context) ([]model.SchoolAudit, error) {
	return ListLegacySchoolAuditsBun(ctx, s.bun)
}

func (s *bunStore) ListSchoolAuditsWithSharingURLs(ctx context.Context) ([]model.SchoolAudit, error) {
	return ListSchoolAuditsWithSharingURLsBun(ctx, s.bun)
}

func (s *bunStore) InsertAssignment(ctx context.Context, a *model.SchoolAssignment) error {
	return InsertAssignmentBun(ctx, s.bun, a)
}

func (s *bunStore) UpdateAssignment(ctx context.Context, a *model.SchoolAssignment) error {
	return UpdateAssignmentBun(ctx, s.bun, a)
}

func (s *bunStore) GetAssignment(ctx context.Context, id string, activeOnly bool) (*model.SchoolAssignment, error) {
	return GetAssignmentBun(ctx, s.bun, id, activeOnly)
}

func (s *bunStore) FindAssignment(ctx context.Context, trainerEmail, date string, activeOnly bool) (*model.SchoolAssignment, error) {
	return FindAssignmentBun(ctx, s.bun, trainerEmail, date, activeOnly)
}

func (s *bunStore) SoftDeleteAssignment(ctx context.Context, id string) (bool, error) {
	return SoftDeleteAssignmentBun(ctx, s.bun, id)
}

func (s *bunStore) ListTrainerAssignments(ctx context.Context, trainerEmail, from, to string) ([]model.SchoolAssignment, error) {
	return ListTrainerAssignmentsBun(ctx, s.bun, trainerEmail, from, to)
}

func (s *bunStore) ListControllerAssignments(ctx context.Context, controllerEmail string, f DateFilter) ([]model.SchoolAssignment, error) {
	return ListControllerAssignmentsBun(ctx, s.bun, controllerEmail, f)
}

func (s *bunStore) InsertAuditLog(ctx context.Context, e *model.AuditLogEntry) error {
	return InsertAuditLogBun(ctx, s.bun, e)
}

func (s *bunStore) ListAuditLogs(ctx context.Context, f AuditLogFilter) ([]model.AuditLogEntry, error) {
	return ListAuditLogsBun(ctx, s.bun, f)
}

// ExportDataForBackup retrieves all data from the database for a backup.
func (s *bunStore) ExportDataForBackup(ctx context.Context) (*model.BackupData, error) {
	return ExportDataForBackupBun(ctx, s.bun)
}

// ImportDataFromBackup restores the database from a backup, replacing
// everything currently stored.
func (s *bunStore) ImportDataFromBackup(ctx context.Context, backup *model.BackupData) error {
	return ImportDataFromBackupBun(ctx, s.bun, backup)
}

// Close releases the underlying connection pool.
func (s *bunStore) Close() error {
	return s.bun.Close()
}
