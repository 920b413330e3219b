// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldops/fieldaudit/internal/model"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserModel maps the users table.
type UserModel struct {
	bun.BaseModel   `bun:"table:users"`
	ID              string    `bun:"id,pk"`
	Email           string    `bun:"email"`
	PasswordHash    string    `bun:"password_hash"`
	Role            string    `bun:"role"`
	FullName        string    `bun:"full_name"`
	PhoneNumber     string    `bun:"phone_number"`
	ControllerEmail string    `bun:"controller_email"`
	Phone           string    `bun:"phone"`
	State           string    `bun:"state"`
	City            string    `bun:"city"`
	CreatedAt       time.Time `bun:"created_at"`
	IsActive        bool      `bun:"is_active"`
}

// MysteryAuditModel maps mystery_audits. Evaluations are stored as JSON.
type MysteryAuditModel struct {
	bun.BaseModel `bun:"table:mystery_audits"`
	ID            string    `bun:"id,pk"`
	UserEmail     string    `bun:"user_email"`
	AuditType     string    `bun:"audit_type"`
	Latitude      float64   `bun:"latitude"`
	Longitude     float64   `bun:"longitude"`
	ImageURL      string    `bun:"image_url"`
	Timestamp     string    `bun:"display_timestamp"`
	CityName      string    `bun:"city_name"`
	Evaluations   string    `bun:"evaluations"`
	StaffCount    int       `bun:"staff_count"`
	CreatedAt     time.Time `bun:"created_at"`
	Status        string    `bun:"status"`
}

// SchoolAuditModel maps school_audits. A NULL sessions column marks a row
// written before per-session data existed.
type SchoolAuditModel struct {
	bun.BaseModel          `bun:"table:school_audits"`
	ID                     string         `bun:"id,pk"`
	UserEmail              string         `bun:"user_email"`
	SchoolName             string         `bun:"school_name"`
	City                   string         `bun:"city"`
	Latitude               float64        `bun:"latitude"`
	Longitude              float64        `bun:"longitude"`
	StartTimestamp         string         `bun:"start_timestamp"`
	EndTimestamp           string         `bun:"end_timestamp"`
	AuditDate              string         `bun:"audit_date"`
	AuditDay               string         `bun:"audit_day"`
	StartImageFileID       string         `bun:"start_image_file_id"`
	EndImageFileID         string         `bun:"end_image_file_id"`
	AuditSheetImageFileID  string         `bun:"audit_sheet_image_file_id"`
	PromotersCount         int            `bun:"promoters_count"`
	BoostSachetsGiven      int            `bun:"boost_sachets_given"`
	GiveawaysGiven         string         `bun:"giveaways_given"`
	Sessions               sql.NullString `bun:"sessions"`
	TotalStudents          sql.NullInt64  `bun:"total_students"`
	SessionsCompleted      int            `bun:"sessions_completed"`
	TeacherCount           int            `bun:"teacher_count"`
	AuditorRemarks         string         `bun:"auditor_remarks"`
	SessionDurationMinutes int            `bun:"session_duration_minutes"`
	Status                 string         `bun:"status"`
	CreatedAt              time.Time      `bun:"created_at"`
	CompletedAt            time.Time      `bun:"completed_at,nullzero"`
	LastModifiedAt         time.Time      `bun:"last_modified_at,nullzero"`
	LastModifiedBy         string         `bun:"last_modified_by"`
	StudentsSession1       int            `bun:"students_session1"`
	StudentsSession2       int            `bun:"students_session2"`
	StudentsSession3       int            `bun:"students_session3"`
	WinnersSession1        string         `bun:"winners_session1"`
	WinnersSession2        string         `bun:"winners_session2"`
	WinnersSession3        string         `bun:"winners_session3"`
	MigratedAt             time.Time      `bun:"migrated_at,nullzero"`
	MigrationVersion       string         `bun:"migration_version"`
	OriginalImageURLs      sql.NullString `bun:"original_image_urls"`
}

// AssignmentModel maps school_assignments. Schools are stored as JSON.
type AssignmentModel struct {
	bun.BaseModel        `bun:"table:school_assignments"`
	ID                   string    `bun:"id,pk"`
	ControllerEmail      string    `bun:"controller_email"`
	TrainerEmail         string    `bun:"trainer_email"`
	AssignmentDate       string    `bun:"assignment_date"`
	Schools              string    `bun:"schools"`
	Status               string    `bun:"status"`
	CreatedAt            time.Time `bun:"created_at"`
	UpdatedAt            time.Time `bun:"updated_at,nullzero"`
	PreviousAssignmentID string    `bun:"previous_assignment_id"`
}

// AuditLogModel maps audit_logs.
type AuditLogModel struct {
	bun.BaseModel    `bun:"table:audit_logs"`
	ID               string         `bun:"id,pk"`
	Action           string         `bun:"action"`
	AuditID          string         `bun:"audit_id"`
	OriginalData     sql.NullString `bun:"original_data"`
	UpdatedFields    sql.NullString `bun:"updated_fields"`
	DeletedAuditData sql.NullString `bun:"deleted_audit_data"`
	DeletionReason   string         `bun:"deletion_reason"`
	PerformedBy      string         `bun:"performed_by"`
	PerformedAt      time.Time      `bun:"performed_at"`
	IPAddress        string         `bun:"ip_address"`
	UserAgent        string         `bun:"user_agent"`
	SchoolName       string         `bun:"school_name"`
	AuditDate        string         `bun:"audit_date"`
	Recoverable      bool           `bun:"recoverable"`
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func toJSONString(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func toNullJSON(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	s, err := toJSONString(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func fromNullJSON(ns sql.NullString, dst any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}

func userToModel(u UserModel) model.User {
	return model.User{
		ID:              u.ID,
		Email:           u.Email,
		PasswordHash:    u.PasswordHash,
		Role:            model.Role(u.Role),
		FullName:        u.FullName,
		PhoneNumber:     u.PhoneNumber,
		ControllerEmail: u.ControllerEmail,
		Phone:           u.Phone,
		State:           u.State,
		City:            u.City,
		CreatedAt:       u.CreatedAt,
		IsActive:        u.IsActive,
	}
}

func userFromModel(u *model.User) UserModel {
	return UserModel{
		ID:              newID(u.ID),
		Email:           u.Email,
		PasswordHash:    u.PasswordHash,
		Role:            string(u.Role),
		FullName:        u.FullName,
		PhoneNumber:     u.PhoneNumber,
		ControllerEmail: u.ControllerEmail,
		Phone:           u.Phone,
		State:           u.State,
		City:            u.City,
		CreatedAt:       utc(u.CreatedAt),
		IsActive:        u.IsActive,
	}
}

func mysteryToModel(m MysteryAuditModel) (model.MysteryAudit, error) {
	a := model.MysteryAudit{
		ID:         m.ID,
		UserEmail:  m.UserEmail,
		AuditType:  m.AuditType,
		Location:   model.Location{Latitude: model.Coordinate(m.Latitude), Longitude: model.Coordinate(m.Longitude)},
		ImageURL:   m.ImageURL,
		Timestamp:  m.Timestamp,
		CityName:   m.CityName,
		StaffCount: m.StaffCount,
		CreatedAt:  m.CreatedAt,
		Status:     m.Status,
	}
	if m.Evaluations != "" {
		if err := json.Unmarshal([]byte(m.Evaluations), &a.Evaluations); err != nil {
			return a, fmt.Errorf("decode evaluations of %s: %w", m.ID, err)
		}
	}
	return a, nil
}

func mysteryFromModel(a *model.MysteryAudit) (MysteryAuditModel, error) {
	evals := a.Evaluations
	if evals == nil {
		evals = []model.Evaluation{}
	}
	ev, err := toJSONString(evals)
	if err != nil {
		return MysteryAuditModel{}, err
	}
	return MysteryAuditModel{
		ID:          newID(a.ID),
		UserEmail:   a.UserEmail,
		AuditType:   a.AuditType,
		Latitude:    float64(a.Location.Latitude),
		Longitude:   float64(a.Location.Longitude),
		ImageURL:    a.ImageURL,
		Timestamp:   a.Timestamp,
		CityName:    a.CityName,
		Evaluations: ev,
		StaffCount:  a.StaffCount,
		CreatedAt:   utc(a.CreatedAt),
		Status:      a.Status,
	}, nil
}

func schoolAuditToModel(m SchoolAuditModel) (model.SchoolAudit, error) {
	a := model.SchoolAudit{
		ID:                     m.ID,
		UserEmail:              m.UserEmail,
		SchoolName:             m.SchoolName,
		City:                   m.City,
		Location:               model.Location{Latitude: model.Coordinate(m.Latitude), Longitude: model.Coordinate(m.Longitude)},
		StartTimestamp:         m.StartTimestamp,
		EndTimestamp:           m.EndTimestamp,
		AuditDate:              m.AuditDate,
		AuditDay:               m.AuditDay,
		StartImageFileID:       m.StartImageFileID,
		EndImageFileID:         m.EndImageFileID,
		AuditSheetImageFileID:  m.AuditSheetImageFileID,
		PromotersCount:         m.PromotersCount,
		BoostSachetsGiven:      m.BoostSachetsGiven,
		GiveawaysGiven:         m.GiveawaysGiven,
		SessionsCompleted:      m.SessionsCompleted,
		TeacherCount:           m.TeacherCount,
		AuditorRemarks:         m.AuditorRemarks,
		SessionDurationMinutes: m.SessionDurationMinutes,
		Status:                 m.Status,
		CreatedAt:              m.CreatedAt,
		CompletedAt:            m.CompletedAt,
		LastModifiedAt:         m.LastModifiedAt,
		LastModifiedBy:         m.LastModifiedBy,
		LegacyStudents:         [3]int{m.StudentsSession1, m.StudentsSession2, m.StudentsSession3},
		LegacyWinners:          [3]string{m.WinnersSession1, m.WinnersSession2, m.WinnersSession3},
		MigratedAt:             m.MigratedAt,
		MigrationVersion:       m.MigrationVersion,
	}
	if m.TotalStudents.Valid {
		n := int(m.TotalStudents.Int64)
		a.TotalStudents = &n
	}
	if m.Sessions.Valid {
		a.Sessions = map[string]model.Session{}
		if err := fromNullJSON(m.Sessions, &a.Sessions); err != nil {
			return a, fmt.Errorf("decode sessions of %s: %w", m.ID, err)
		}
	}
	if err := fromNullJSON(m.OriginalImageURLs, &a.OriginalImageURLs); err != nil {
		return a, fmt.Errorf("decode original urls of %s: %w", m.ID, err)
	}
	return a, nil
}

func schoolAuditFromModel(a *model.SchoolAudit) (SchoolAuditModel, error) {
	sessions, err := toNullJSON(a.Sessions, a.Sessions != nil)
	if err != nil {
		return SchoolAuditModel{}, err
	}
	originals, err := toNullJSON(a.OriginalImageURLs, len(a.OriginalImageURLs) > 0)
	if err != nil {
		return SchoolAuditModel{}, err
	}
	m := SchoolAuditModel{
		ID:                     newID(a.ID),
		UserEmail:              a.UserEmail,
		SchoolName:             a.SchoolName,
		City:                   a.City,
		Latitude:               float64(a.Location.Latitude),
		Longitude:              float64(a.Location.Longitude),
		StartTimestamp:         a.StartTimestamp,
		EndTimestamp:           a.EndTimestamp,
		AuditDate:              a.AuditDate,
		AuditDay:               a.AuditDay,
		StartImageFileID:       a.StartImageFileID,
		EndImageFileID:         a.EndImageFileID,
		AuditSheetImageFileID:  a.AuditSheetImageFileID,
		PromotersCount:         a.PromotersCount,
		BoostSachetsGiven:      a.BoostSachetsGiven,
		GiveawaysGiven:         a.GiveawaysGiven,
		Sessions:               sessions,
		SessionsCompleted:      a.SessionsCompleted,
		TeacherCount:           a.TeacherCount,
		AuditorRemarks:         a.AuditorRemarks,
		SessionDurationMinutes: a.SessionDurationMinutes,
		Status:                 a.Status,
		CreatedAt:              utc(a.CreatedAt),
		CompletedAt:            utc(a.CompletedAt),
		LastModifiedAt:         utc(a.LastModifiedAt),
		LastModifiedBy:         a.LastModifiedBy,
		StudentsSession1:       a.LegacyStudents[0],
		StudentsSession2:       a.LegacyStudents[1],
		StudentsSession3:       a.LegacyStudents[2],
		WinnersSession1:        a.LegacyWinners[0],
		WinnersSession2:        a.LegacyWinners[1],
		WinnersSession3:        a.LegacyWinners[2],
		MigratedAt:             utc(a.MigratedAt),
		MigrationVersion:       a.MigrationVersion,
		OriginalImageURLs:      originals,
	}
	if a.TotalStudents != nil {
		m.TotalStudents = sql.NullInt64{Int64: int64(*a.TotalStudents), Valid: true}
	}
	return m, nil
}

func assignmentToModel(m AssignmentModel) (model.SchoolAssignment, error) {
	a := model.SchoolAssignment{
		ID:                   m.ID,
		ControllerEmail:      m.ControllerEmail,
		TrainerEmail:         m.TrainerEmail,
		AssignmentDate:       m.AssignmentDate,
		Status:               m.Status,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
		PreviousAssignmentID: m.PreviousAssignmentID,
	}
	if m.Schools != "" {
		if err := json.Unmarshal([]byte(m.Schools), &a.Schools); err != nil {
			return a, fmt.Errorf("decode schools of %s: %w", m.ID, err)
		}
	}
	return a, nil
}

func assignmentFromModel(a *model.SchoolAssignment) (AssignmentModel, error) {
	schools := a.Schools
	if schools == nil {
		schools = []model.School{}
	}
	s, err := toJSONString(schools)
	if err != nil {
		return AssignmentModel{}, err
	}
	return AssignmentModel{
		ID:                   newID(a.ID),
		ControllerEmail:      a.ControllerEmail,
		TrainerEmail:         a.TrainerEmail,
		AssignmentDate:       a.AssignmentDate,
		Schools:              s,
		Status:               a.Status,
		CreatedAt:            utc(a.CreatedAt),
		UpdatedAt:            utc(a.UpdatedAt),
		PreviousAssignmentID: a.PreviousAssignmentID,
	}, nil
}

func auditLogToModel(m AuditLogModel) (model.AuditLogEntry, error) {
	e := model.AuditLogEntry{
		ID:             m.ID,
		Action:         m.Action,
		AuditID:        m.AuditID,
		DeletionReason: m.DeletionReason,
		PerformedBy:    m.PerformedBy,
		PerformedAt:    m.PerformedAt,
		IPAddress:      m.IPAddress,
		UserAgent:      m.UserAgent,
		SchoolName:     m.SchoolName,
		AuditDate:      m.AuditDate,
		Recoverable:    m.Recoverable,
	}
	if m.OriginalData.Valid {
		e.OriginalData = &model.SchoolAudit{}
		if err := fromNullJSON(m.OriginalData, e.OriginalData); err != nil {
			return e, fmt.Errorf("decode original data of %s: %w", m.ID, err)
		}
	}
	if m.DeletedAuditData.Valid {
		e.DeletedAuditData = &model.SchoolAudit{}
		if err := fromNullJSON(m.DeletedAuditData, e.DeletedAuditData); err != nil {
			return e, fmt.Errorf("decode deleted data of %s: %w", m.ID, err)
		}
	}
	if err := fromNullJSON(m.UpdatedFields, &e.UpdatedFields); err != nil {
		return e, fmt.Errorf("decode updated fields of %s: %w", m.ID, err)
	}
	return e, nil
}

func auditLogFromModel(e *model.AuditLogEntry) (AuditLogModel, error) {
	orig, err := toNullJSON(e.OriginalData, e.OriginalData != nil)
	if err != nil {
		return AuditLogModel{}, err
	}
	deleted, err := toNullJSON(e.DeletedAuditData, e.DeletedAuditData != nil)
	if err != nil {
		return AuditLogModel{}, err
	}
	updated, err := toNullJSON(e.UpdatedFields, e.UpdatedFields != nil)
	if err != nil {
		return AuditLogModel{}, err
	}
	return AuditLogModel{
		ID:               newID(e.ID),
		Action:           e.Action,
		AuditID:          e.AuditID,
		OriginalData:     orig,
		UpdatedFields:    updated,
		DeletedAuditData: deleted,
		DeletionReason:   e.DeletionReason,
		PerformedBy:      e.PerformedBy,
		PerformedAt:      utc(e.PerformedAt),
		IPAddress:        e.IPAddress,
		UserAgent:        e.UserAgent,
		SchoolName:       e.SchoolName,
		AuditDate:        e.AuditDate,
		Recoverable:      e.Recoverable,
	}, nil
}

// --- users ---

// CreateUserBun inserts a user and fills in its generated id.
func CreateUserBun(ctx context.Context, bdb bun.IDB, u *model.User) error {
	m := userFromModel(u)
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	u.ID = m.ID
	return nil
}

// GetUserByEmailBun returns the user with the given email or ErrNotFound.
func GetUserByEmailBun(ctx context.Context, bdb bun.IDB, email string) (*model.User, error) {
	var m UserModel
	if err := bdb.NewSelect().Model(&m).Where("email = ?", email).Limit(1).Scan(ctx); err != nil {
		return nil, MapDBError(err)
	}
	u := userToModel(m)
	return &u, nil
}

// UpdateUserPasswordBun replaces the password hash of a user.
func UpdateUserPasswordBun(ctx context.Context, bdb bun.IDB, email, hash string) error {
	res, err := bdb.NewUpdate().Model((*UserModel)(nil)).Set("password_hash = ?", hash).Where("email = ?", email).Exec(ctx)
	if err != nil {
		return MapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFieldWorkersBun returns the field workers reporting to a controller.
func ListFieldWorkersBun(ctx context.Context, bdb bun.IDB, controllerEmail string) ([]model.User, error) {
	var ms []UserModel
	err := bdb.NewSelect().Model(&ms).
		Where("controller_email = ?", controllerEmail).
		Where("role = ?", string(model.RoleFieldWorker)).
		Order("email ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(ms))
	for _, m := range ms {
		out = append(out, userToModel(m))
	}
	return out, nil
}

// --- mystery audits ---

// InsertMysteryAuditBun stores a mystery audit and fills in its id.
func InsertMysteryAuditBun(ctx context.Context, bdb bun.IDB, a *model.MysteryAudit) error {
	m, err := mysteryFromModel(a)
	if err != nil {
		return err
	}
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	a.ID = m.ID
	return nil
}

// GetMysteryAuditBun loads one mystery audit.
func GetMysteryAuditBun(ctx context.Context, bdb bun.IDB, id string) (*model.MysteryAudit, error) {
	var m MysteryAuditModel
	if err := bdb.NewSelect().Model(&m).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, MapDBError(err)
	}
	a, err := mysteryToModel(m)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListMysteryAuditsBun returns one page of a user's audits, newest first.
func ListMysteryAuditsBun(ctx context.Context, bdb bun.IDB, userEmail string, offset, limit int) ([]model.MysteryAudit, error) {
	var ms []MysteryAuditModel
	q := bdb.NewSelect().Model(&ms).Where("user_email = ?", userEmail).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.MysteryAudit, 0, len(ms))
	for _, m := range ms {
		a, err := mysteryToModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// MysteryAuditStatsBun counts a user's audits overall and since a time and
// sums the evaluated staff.
func MysteryAuditStatsBun(ctx context.Context, bdb bun.IDB, userEmail string, since time.Time) (MysteryStats, error) {
	var st MysteryStats
	total, err := bdb.NewSelect().Model((*MysteryAuditModel)(nil)).Where("user_email = ?", userEmail).Count(ctx)
	if err != nil {
		return st, err
	}
	st.Total = total
	recent, err := bdb.NewSelect().Model((*MysteryAuditModel)(nil)).
		Where("user_email = ?", userEmail).
		Where("created_at >= ?", since.UTC()).
		Count(ctx)
	if err != nil {
		return st, err
	}
	st.SinceCount = recent
	var sum sql.NullInt64
	err = bdb.NewSelect().Model((*MysteryAuditModel)(nil)).
		ColumnExpr("SUM(staff_count)").
		Where("user_email = ?", userEmail).
		Scan(ctx, &sum)
	if err != nil {
		return st, err
	}
	st.StaffSum = int(sum.Int64)
	return st, nil
}

// --- school audits ---

// InsertSchoolAuditBun stores a new school audit and fills in its id.
func InsertSchoolAuditBun(ctx context.Context, bdb bun.IDB, a *model.SchoolAudit) error {
	m, err := schoolAuditFromModel(a)
	if err != nil {
		return err
	}
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	a.ID = m.ID
	return nil
}

// GetSchoolAuditBun loads one school audit.
func GetSchoolAuditBun(ctx context.Context, bdb bun.IDB, id string) (*model.SchoolAudit, error) {
	var m SchoolAuditModel
	if err := bdb.NewSelect().Model(&m).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, MapDBError(err)
	}
	a, err := schoolAuditToModel(m)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateSchoolAuditBun writes every column of an existing audit.
func UpdateSchoolAuditBun(ctx context.Context, bdb bun.IDB, a *model.SchoolAudit) error {
	if a.ID == "" {
		return ErrNotFound
	}
	m, err := schoolAuditFromModel(a)
	if err != nil {
		return err
	}
	res, err := bdb.NewUpdate().Model(&m).WherePK().Exec(ctx)
	if err != nil {
		return MapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSchoolAuditBun removes an audit permanently.
func DeleteSchoolAuditBun(ctx context.Context, bdb bun.IDB, id string) error {
	res, err := bdb.NewDelete().Model((*SchoolAuditModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func firstSchoolAudit(ctx context.Context, q *bun.SelectQuery, m *SchoolAuditModel) (*model.SchoolAudit, error) {
	if err := q.Order("created_at DESC").Limit(1).Scan(ctx); err != nil {
		return nil, MapDBError(err)
	}
	a, err := schoolAuditToModel(*m)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindInProgressAuditBun finds an in-progress audit for the same school on
// the same day.
func FindInProgressAuditBun(ctx context.Context, bdb bun.IDB, userEmail, schoolName, city, auditDate string) (*model.SchoolAudit, error) {
	var m SchoolAuditModel
	q := bdb.NewSelect().Model(&m).
		Where("user_email = ?", userEmail).
		Where("school_name = ?", schoolName).
		Where("city = ?", city).
		Where("audit_date = ?", auditDate).
		Where("status = ?", model.StatusInProgress)
	return firstSchoolAudit(ctx, q, &m)
}

// FindCurrentAuditBun returns the user's in-progress audit for a day.
func FindCurrentAuditBun(ctx context.Context, bdb bun.IDB, userEmail, auditDate string) (*model.SchoolAudit, error) {
	var m SchoolAuditModel
	q := bdb.NewSelect().Model(&m).
		Where("user_email = ?", userEmail).
		Where("audit_date = ?", auditDate).
		Where("status = ?", model.StatusInProgress)
	return firstSchoolAudit(ctx, q, &m)
}

func scanSchoolAudits(ctx context.Context, q *bun.SelectQuery, ms *[]SchoolAuditModel) ([]model.SchoolAudit, error) {
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.SchoolAudit, 0, len(*ms))
	for _, m := range *ms {
		a, err := schoolAuditToModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// ListSchoolAuditsBun returns audits matching f, newest first.
func ListSchoolAuditsBun(ctx context.Context, bdb bun.IDB, f SchoolAuditFilter) ([]model.SchoolAudit, error) {
	var ms []SchoolAuditModel
	q := bdb.NewSelect().Model(&ms)
	if len(f.UserEmails) > 0 {
		q = q.Where("user_email IN (?)", bun.In(f.UserEmails))
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.DayFrom != "" {
		q = q.Where("audit_day >= ?", f.DayFrom)
	}
	if f.DayTo != "" {
		q = q.Where("audit_day <= ?", f.DayTo)
	}
	if len(f.Schools) > 0 {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			for _, s := range f.Schools {
				q = q.WhereOr("(school_name = ? AND city = ?)", s.SchoolName, s.City)
			}
			return q
		})
	}
	return scanSchoolAudits(ctx, q.Order("created_at DESC"), &ms)
}

// ListLegacySchoolAuditsBun returns audits that still use the per-session
// counter columns and have no sessions document.
func ListLegacySchoolAuditsBun(ctx context.Context, bdb bun.IDB) ([]model.SchoolAudit, error) {
	var ms []SchoolAuditModel
	q := bdb.NewSelect().Model(&ms).
		Where("sessions IS NULL").
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("students_session1 <> 0").WhereOr("students_session2 <> 0").WhereOr("students_session3 <> 0")
		}).
		Order("created_at ASC")
	return scanSchoolAudits(ctx, q, &ms)
}

// ListSchoolAuditsWithSharingURLsBun returns audits whose image references
// are still SharePoint sharing links.
func ListSchoolAuditsWithSharingURLsBun(ctx context.Context, bdb bun.IDB) ([]model.SchoolAudit, error) {
	var ms []SchoolAuditModel
	const pattern = "%sharepoint.com%"
	q := bdb.NewSelect().Model(&ms).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("start_image_file_id LIKE ?", pattern).
				WhereOr("end_image_file_id LIKE ?", pattern).
				WhereOr("audit_sheet_image_file_id LIKE ?", pattern)
		}).
		Order("created_at ASC")
	return scanSchoolAudits(ctx, q, &ms)
}

// --- assignments ---

// InsertAssignmentBun stores a new assignment and fills in its id.
func InsertAssignmentBun(ctx context.Context, bdb bun.IDB, a *model.SchoolAssignment) error {
	m, err := assignmentFromModel(a)
	if err != nil {
		return err
	}
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	a.ID = m.ID
	return nil
}

// UpdateAssignmentBun writes every column of an existing assignment.
func UpdateAssignmentBun(ctx context.Context, bdb bun.IDB, a *model.SchoolAssignment) error {
	if a.ID == "" {
		return ErrNotFound
	}
	m, err := assignmentFromModel(a)
	if err != nil {
		return err
	}
	res, err := bdb.NewUpdate().Model(&m).WherePK().Exec(ctx)
	if err != nil {
		return MapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func firstAssignment(ctx context.Context, q *bun.SelectQuery, m *AssignmentModel) (*model.SchoolAssignment, error) {
	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, MapDBError(err)
	}
	a, err := assignmentToModel(*m)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAssignmentBun loads an assignment by id.
func GetAssignmentBun(ctx context.Context, bdb bun.IDB, id string, activeOnly bool) (*model.SchoolAssignment, error) {
	var m AssignmentModel
	q := bdb.NewSelect().Model(&m).Where("id = ?", id)
	if activeOnly {
		q = q.Where("status = ?", model.StatusActive)
	}
	return firstAssignment(ctx, q, &m)
}

// FindAssignmentBun loads the assignment of a trainer for a date. Active
// rows are preferred when several exist.
func FindAssignmentBun(ctx context.Context, bdb bun.IDB, trainerEmail, date string, activeOnly bool) (*model.SchoolAssignment, error) {
	var m AssignmentModel
	q := bdb.NewSelect().Model(&m).
		Where("trainer_email = ?", trainerEmail).
		Where("assignment_date = ?", date)
	if activeOnly {
		q = q.Where("status = ?", model.StatusActive)
	} else {
		q = q.OrderExpr("CASE WHEN status = ? THEN 0 ELSE 1 END", model.StatusActive)
	}
	return firstAssignment(ctx, q.Order("created_at DESC"), &m)
}

// SoftDeleteAssignmentBun marks an assignment deleted. It reports whether a
// row changed.
func SoftDeleteAssignmentBun(ctx context.Context, bdb bun.IDB, id string) (bool, error) {
	res, err := bdb.NewUpdate().Model((*AssignmentModel)(nil)).
		Set("status = ?", model.StatusDeleted).
		Where("id = ?", id).
		Where("status <> ?", model.StatusDeleted).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanAssignments(ctx context.Context, q *bun.SelectQuery, ms *[]AssignmentModel) ([]model.SchoolAssignment, error) {
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.SchoolAssignment, 0, len(*ms))
	for _, m := range *ms {
		a, err := assignmentToModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// ListTrainerAssignmentsBun returns active assignments in [from, to], oldest first.
func ListTrainerAssignmentsBun(ctx context.Context, bdb bun.IDB, trainerEmail, from, to string) ([]model.SchoolAssignment, error) {
	var ms []AssignmentModel
	q := bdb.NewSelect().Model(&ms).
		Where("trainer_email = ?", trainerEmail).
		Where("status = ?", model.StatusActive).
		Where("assignment_date >= ?", from).
		Where("assignment_date <= ?", to).
		Order("assignment_date ASC")
	return scanAssignments(ctx, q, &ms)
}

// ListControllerAssignmentsBun returns a controller's active assignments,
// newest date first.
func ListControllerAssignmentsBun(ctx context.Context, bdb bun.IDB, controllerEmail string, f DateFilter) ([]model.SchoolAssignment, error) {
	var ms []AssignmentModel
	q := bdb.NewSelect().Model(&ms).
		Where("controller_email = ?", controllerEmail).
		Where("status = ?", model.StatusActive)
	switch f.Mode {
	case "upcoming":
		q = q.Where("assignment_date >= ?", f.Today)
	case "past":
		q = q.Where("assignment_date < ?", f.Today)
	}
	return scanAssignments(ctx, q.Order("assignment_date DESC"), &ms)
}

// --- audit logs ---

// InsertAuditLogBun stores an audit log entry and fills in its id.
func InsertAuditLogBun(ctx context.Context, bdb bun.IDB, e *model.AuditLogEntry) error {
	m, err := auditLogFromModel(e)
	if err != nil {
		return err
	}
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	e.ID = m.ID
	return nil
}

// ListAuditLogsBun returns log entries matching f, newest first.
func ListAuditLogsBun(ctx context.Context, bdb bun.IDB, f AuditLogFilter) ([]model.AuditLogEntry, error) {
	var ms []AuditLogModel
	q := bdb.NewSelect().Model(&ms)
	if f.PerformedBy != "" {
		q = q.Where("performed_by = ?", f.PerformedBy)
	}
	if f.Action != "" {
		q = q.Where("action = ?", strings.ToUpper(f.Action))
	}
	if !f.From.IsZero() {
		q = q.Where("performed_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("performed_at <= ?", f.To.UTC())
	}
	q = q.Order("performed_at DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.AuditLogEntry, 0, len(ms))
	for _, m := range ms {
		e, err := auditLogToModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// --- backup ---

// ExportDataForBackupBun exports every table inside one transaction.
func ExportDataForBackupBun(ctx context.Context, bdb *bun.DB) (*model.BackupData, error) {
	backup := &model.BackupData{SchemaVersion: 1, CreatedAt: time.Now().UTC()}
	err := WithTx(ctx, bdb, func(ctx context.Context, tx bun.Tx) error {
		var users []UserModel
		if err := tx.NewSelect().Model(&users).Order("created_at ASC").Scan(ctx); err != nil {
			return err
		}
		for _, u := range users {
			backup.Users = append(backup.Users, userToModel(u))
		}

		var mas []MysteryAuditModel
		if err := tx.NewSelect().Model(&mas).Order("created_at ASC").Scan(ctx); err != nil {
			return err
		}
		for _, m := range mas {
			a, err := mysteryToModel(m)
			if err != nil {
				return err
			}
			backup.MysteryAudits = append(backup.MysteryAudits, a)
		}

		var sas []SchoolAuditModel
		if err := tx.NewSelect().Model(&sas).Order("created_at ASC").Scan(ctx); err != nil {
			return err
		}
		for _, m := range sas {
			a, err := schoolAuditToModel(m)
			if err != nil {
				return err
			}
			backup.SchoolAudits = append(backup.SchoolAudits, a)
		}

		var asg []AssignmentModel
		if err := tx.NewSelect().Model(&asg).Order("created_at ASC").Scan(ctx); err != nil {
			return err
		}
		for _, m := range asg {
			a, err := assignmentToModel(m)
			if err != nil {
				return err
			}
			backup.SchoolAssignments = append(backup.SchoolAssignments, a)
		}

		var logs []AuditLogModel
		if err := tx.NewSelect().Model(&logs).Order("performed_at ASC").Scan(ctx); err != nil {
			return err
		}
		for _, m := range logs {
			e, err := auditLogToModel(m)
			if err != nil {
				return err
			}
			backup.AuditLogs = append(backup.AuditLogs, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return backup, nil
}

// ImportDataFromBackupBun performs a full wipe-and-replace in one transaction.
func ImportDataFromBackupBun(ctx context.Context, bdb *bun.DB, backup *model.BackupData) error {
	if backup == nil {
		return errors.New("nil backup")
	}
	return WithTx(ctx, bdb, func(ctx context.Context, tx bun.Tx) error {
		for _, t := range []string{"audit_logs", "school_assignments", "school_audits", "mystery_audits", "users"} {
			if _, err := ExecRaw(ctx, tx, fmt.Sprintf("DELETE FROM %s", t)); err != nil {
				return err
			}
		}
		for i := range backup.Users {
			if err := CreateUserBun(ctx, tx, &backup.Users[i]); err != nil {
				return fmt.Errorf("restore user %s: %w", backup.Users[i].Email, err)
			}
		}
		for i := range backup.MysteryAudits {
			if err := InsertMysteryAuditBun(ctx, tx, &backup.MysteryAudits[i]); err != nil {
				return fmt.Errorf("restore mystery audit %s: %w", backup.MysteryAudits[i].ID, err)
			}
		}
		for i := range backup.SchoolAudits {
			if err := InsertSchoolAuditBun(ctx, tx, &backup.SchoolAudits[i]); err != nil {
				return fmt.Errorf("restore school audit %s: %w", backup.SchoolAudits[i].ID, err)
			}
		}
		for i := range backup.SchoolAssignments {
			if err := InsertAssignmentBun(ctx, tx, &backup.SchoolAssignments[i]); err != nil {
				return fmt.Errorf("restore assignment %s: %w", backup.SchoolAssignments[i].ID, err)
			}
		}
		for i := range backup.AuditLogs {
			if err := InsertAuditLogBun(ctx, tx, &backup.AuditLogs[i]); err != nil {
				return fmt.Errorf("restore audit log %s: %w", backup.AuditLogs[i].ID, err)
			}
		}
		return nil
	})
}
