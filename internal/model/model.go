// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// package model defines the core data structures used throughout fieldaudit.
// These structs represent the main entities of the application, such as users,
// mystery audits, school audits and school assignments.
package model // import "github.com/fieldops/fieldaudit/internal/model"

import (
	"time"
)

// Role is the access role of a user.
type Role string

const (
	RoleFieldWorker Role = "field_worker"
	RoleController  Role = "controller"
)

// Audit and assignment status values.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusActive     = "active"
	StatusDeleted    = "deleted"
)

// AuditTypeMystery is the only accepted audit_type for mystery audits.
const AuditTypeMystery = "mystery_audit"

// UploadFailedPrefix marks an image reference whose upload did not succeed.
const UploadFailedPrefix = "UPLOAD_FAILED"

// User represents an account that can log in to the field app.
type User struct {
	ID              string    `json:"_id"`                     // Primary key.
	Email           string    `json:"email"`                   // Login name, unique.
	PasswordHash    string    `json:"password_hash,omitempty"` // bcrypt hash.
	Role            Role      `json:"role"`                    // field_worker or controller.
	FullName        string    `json:"full_name"`               // Display name.
	PhoneNumber     string    `json:"phone_number"`            // Phone given at registration.
	ControllerEmail string    `json:"controller_email"`        // Controller this field worker reports to.
	Phone           string    `json:"phone"`                   // Legacy phone field.
	State           string    `json:"state"`
	City            string    `json:"city"`
	CreatedAt       time.Time `json:"created_at"`
	IsActive        bool      `json:"is_active"`
}

// Location is a GPS fix captured by the field app.
type Location struct {
	Latitude  Coordinate `json:"latitude"`
	Longitude Coordinate `json:"longitude"`
}

// Evaluation is the free-form staff evaluation object submitted with a
// mystery audit. Only the presence of the required keys is enforced.
type Evaluation map[string]any

// MysteryAudit is a mystery-shopper visit to a store.
type MysteryAudit struct {
	ID          string       `json:"_id"`
	UserEmail   string       `json:"user_email"`
	AuditType   string       `json:"audit_type"`
	Location    Location     `json:"location"`
	ImageURL    string       `json:"image_url"` // Web URL of the photo or UPLOAD_FAILED: <reason>.
	Timestamp   string       `json:"timestamp"` // IST display string.
	CityName    string       `json:"cityName"`
	Evaluations []Evaluation `json:"evaluations"`
	StaffCount  int          `json:"staff_count"`
	CreatedAt   time.Time    `json:"created_at"`
	Status      string       `json:"status"`
}

// Session is one classroom session of a school activation audit.
// Image fields hold drive file ids (or UPLOAD_FAILED markers) and are nil
// when no image was captured.
type Session struct {
	Enabled                 bool    `json:"enabled"`
	Name                    string  `json:"name"`
	StudentsCount           Count   `json:"studentsCount"`
	SachetCount             Count   `json:"sachetCount"`
	WinnerName              string  `json:"winnerName"`
	WinnerClass             string  `json:"winnerClass"`
	StartSelfie             *string `json:"startSelfie"`
	EndSelfie               *string `json:"endSelfie"`
	WinnerPhoto             *string `json:"winnerPhoto"`
	SachetDistributionPhoto *string `json:"sachetDistributionPhoto"`
}

// SchoolAudit is a school activation visit by a trainer.
type SchoolAudit struct {
	ID                     string             `json:"_id"`
	UserEmail              string             `json:"user_email"`
	SchoolName             string             `json:"school_name"`
	City                   string             `json:"city"`
	Location               Location           `json:"location"`
	StartTimestamp         string             `json:"start_timestamp"`
	EndTimestamp           string             `json:"end_timestamp,omitempty"`
	AuditDate              string             `json:"audit_date"` // "02 Jan 2006" in IST.
	AuditDay               string             `json:"audit_day"`  // "2006-01-02" in IST, used for range filters.
	StartImageFileID       string             `json:"start_image_file_id"`
	EndImageFileID         string             `json:"end_image_file_id,omitempty"`
	AuditSheetImageFileID  string             `json:"audit_sheet_image_file_id"`
	PromotersCount         int                `json:"promoters_count"`
	BoostSachetsGiven      int                `json:"boost_sachets_given"`
	GiveawaysGiven         string             `json:"giveaways_given"`
	Sessions               map[string]Session `json:"sessions"`
	TotalStudents          *int               `json:"total_students,omitempty"` // nil for legacy rows.
	SessionsCompleted      int                `json:"sessions_completed"`
	TeacherCount           int                `json:"teacher_count"`
	AuditorRemarks         string             `json:"auditor_remarks"`
	SessionDurationMinutes int                `json:"session_duration_minutes"`
	Status                 string             `json:"status"`
	CreatedAt              time.Time          `json:"created_at"`
	CompletedAt            time.Time          `json:"completed_at,omitzero"`
	LastModifiedAt         time.Time          `json:"last_modified_at,omitzero"`
	LastModifiedBy         string             `json:"last_modified_by,omitempty"`

	// Pre-sessions data model, kept for migration.
	LegacyStudents [3]int    `json:"legacy_students,omitzero"`
	LegacyWinners  [3]string `json:"legacy_winners,omitzero"`

	MigratedAt       time.Time `json:"migrated_at,omitzero"`
	MigrationVersion string    `json:"migration_version,omitempty"`

	// OriginalImageURLs keeps SharePoint URLs replaced by file ids, keyed by
	// the image field name.
	OriginalImageURLs map[string]string `json:"original_image_urls,omitempty"`
}

// HasLegacyCounters reports whether any pre-sessions counter is set.
func (a *SchoolAudit) HasLegacyCounters() bool {
	for _, n := range a.LegacyStudents {
		if n != 0 {
			return true
		}
	}
	return false
}

// School is one entry of an assignment. Fields other than the two required
// ones are kept verbatim in Extra.
type School struct {
	SchoolName string
	City       string
	Extra      map[string]any
}

// SchoolAssignment maps a trainer to the schools to visit on a date.
type SchoolAssignment struct {
	ID                   string    `json:"_id"`
	ControllerEmail      string    `json:"controller_email"`
	TrainerEmail         string    `json:"trainer_email"`
	AssignmentDate       string    `json:"assignment_date"` // YYYY-MM-DD
	Schools              []School  `json:"schools"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at,omitzero"`
	PreviousAssignmentID string    `json:"previous_assignment_id,omitempty"`
}

// Audit log actions.
const (
	ActionEdit   = "EDIT"
	ActionDelete = "DELETE"
)

// AuditLogEntry records an edit or deletion of a school audit.
type AuditLogEntry struct {
	ID               string         `json:"_id"`
	Action           string         `json:"action"`
	AuditID          string         `json:"audit_id"`
	OriginalData     *SchoolAudit   `json:"original_data,omitempty"`
	UpdatedFields    map[string]any `json:"updated_fields,omitempty"`
	DeletedAuditData *SchoolAudit   `json:"deleted_audit_data,omitempty"`
	DeletionReason   string         `json:"deletion_reason,omitempty"`
	PerformedBy      string         `json:"performed_by"`
	PerformedAt      time.Time      `json:"performed_at"`
	IPAddress        string         `json:"ip_address"`
	UserAgent        string         `json:"user_agent"`
	SchoolName       string         `json:"school_name"`
	AuditDate        string         `json:"audit_date"`
	Recoverable      bool           `json:"recoverable,omitempty"`
}

// BackupData holds every table for backup and restore.
type BackupData struct {
	SchemaVersion     int                `json:"schema_version"`
	CreatedAt         time.Time          `json:"created_at"`
	Users             []User             `json:"users"`
	MysteryAudits     []MysteryAudit     `json:"mystery_audits"`
	SchoolAudits      []SchoolAudit      `json:"school_audits"`
	SchoolAssignments []SchoolAssignment `json:"school_assignments"`
	AuditLogs         []AuditLogEntry    `json:"audit_logs"`
}
