// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"time"

	"github.com/fieldops/fieldaudit/internal/model"
)

// Store defines the interface for all database operations in fieldaudit.
// This allows for multiple database backends to be implemented.
type Store interface {
	// User methods
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUserPassword(ctx context.Context, email, passwordHash string) error
	ListFieldWorkers(ctx context.Context, controllerEmail string) ([]model.User, error)

	// Mystery audit methods
	InsertMysteryAudit(ctx context.Context, a *model.MysteryAudit) error
	GetMysteryAudit(ctx context.Context, id string) (*model.MysteryAudit, error)
	ListMysteryAudits(ctx context.Context, userEmail string, offset, limit int) ([]model.MysteryAudit, error)
	MysteryAuditStats(ctx context.Context, userEmail string, since time.Time) (MysteryStats, error)

	// School audit methods
	InsertSchoolAudit(ctx context.Context, a *model.SchoolAudit) error
	GetSchoolAudit(ctx context.Context, id string) (*model.SchoolAudit, error)
	UpdateSchoolAudit(ctx context.Context, a *model.SchoolAudit) error
	DeleteSchoolAudit(ctx context.Context, id string) error
	FindInProgressAudit(ctx context.Context, userEmail, schoolName, city, auditDate string) (*model.SchoolAudit, error)
	FindCurrentAudit(ctx context.Context, userEmail, auditDate string) (*model.SchoolAudit, error)
	ListSchoolAudits(ctx context.Context, f SchoolAuditFilter) ([]model.SchoolAudit, error)
	ListLegacySchoolAudits(ctx context.Context) ([]model.SchoolAudit, error)
	ListSchoolAuditsWithSharingURLs(ctx context.Context) ([]model.SchoolAudit, error)

	// Assignment methods
	InsertAssignment(ctx context.Context, a *model.SchoolAssignment) error
	UpdateAssignment(ctx context.Context, a *model.SchoolAssignment) error
	GetAssignment(ctx context.Context, id string, activeOnly bool) (*model.SchoolAssignment, error)
	FindAssignment(ctx context.Context, trainerEmail, date string, activeOnly bool) (*model.SchoolAssignment, error)
	SoftDeleteAssignment(ctx context.Context, id string) (bool, error)
	ListTrainerAssignments(ctx context.Context, trainerEmail, from, to string) ([]model.SchoolAssignment, error)
	ListControllerAssignments(ctx context.Context, controllerEmail string, f DateFilter) ([]model.SchoolAssignment, error)

	// Audit Log methods
	InsertAuditLog(ctx context.Context, e *model.AuditLogEntry) error
	ListAuditLogs(ctx context.Context, f AuditLogFilter) ([]model.AuditLogEntry, error)

	// Backup methods
	ExportDataForBackup(ctx context.Context) (*model.BackupData, error)
	ImportDataFromBackup(ctx context.Context, backup *model.BackupData) error

	Close() error
}

// MysteryStats aggregates a user's mystery audits.
type MysteryStats struct {
	Total      int
	SinceCount int
	StaffSum   int
}

// SchoolRef identifies a school by name and city.
type SchoolRef struct {
	SchoolName string
	City       string
}

// SchoolAuditFilter narrows ListSchoolAudits. Zero fields do not filter.
// Results are ordered by created_at descending.
type SchoolAuditFilter struct {
	UserEmails []string
	Status     string
	DayFrom    string // YYYY-MM-DD inclusive
	DayTo      string // YYYY-MM-DD inclusive
	Schools    []SchoolRef
}

// DateFilter selects assignments relative to Today.
type DateFilter struct {
	Mode  string // "upcoming", "past" or "all"
	Today string // YYYY-MM-DD
}

// AuditLogFilter narrows ListAuditLogs. Results are newest first.
type AuditLogFilter struct {
	PerformedBy string
	Action      string
	From        time.Time
	To          time.Time
	Limit       int
}
