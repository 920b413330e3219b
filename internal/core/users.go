// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fieldops/fieldaudit/internal/auth"
	"github.com/fieldops/fieldaudit/internal/db"
	"github.com/fieldops/fieldaudit/internal/logging"
	"github.com/fieldops/fieldaudit/internal/model"
)

// Login checks credentials and issues an access/refresh token pair.
func (s *Service) Login(ctx context.Context, p Payload) (Response, error) {
	email, password := p.Str("email"), p.Str("password")
	if email == "" || password == "" {
		return nil, badRequest("auth.email_password_required")
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fail(http.StatusUnauthorized, "auth.invalid_email")
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, fail(http.StatusUnauthorized, "auth.invalid_password")
	}
	pair, err := s.tokens.IssuePair(u.ID, string(u.Role))
	if err != nil {
		logging.Errorf("token generation for %s failed: %v", email, err)
		return nil, fail(http.StatusInternalServerError, "auth.token_generation_failed")
	}
	logging.Infof("login successful for %s", email)
	return Response{
		"message":       M("auth.login_success"),
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"role":          u.Role,
		"email":         u.Email,
	}, nil
}

// RefreshToken exchanges a refresh token for a new access token.
func (s *Service) RefreshToken(_ context.Context, p Payload) (Response, error) {
	rt := p.Str("refresh_token")
	if rt == "" {
		return nil, badRequest("auth.refresh_token_required")
	}
	tok, err := s.tokens.Refresh(rt)
	if err != nil {
		return nil, fail(http.StatusUnauthorized, "auth.invalid_refresh_token")
	}
	return Response{
		"message":      M("auth.refresh_success"),
		"access_token": tok,
	}, nil
}

// QuickLogin issues a long-lived token for a known email without a password.
func (s *Service) QuickLogin(ctx context.Context, p Payload) (Response, error) {
	if !s.quickLogin {
		return nil, fail(http.StatusForbidden, "auth.quick_login_disabled")
	}
	email := p.Str("email")
	if email == "" {
		return nil, badRequest("auth.email_required")
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("auth.user_not_found")
	}
	if err != nil {
		return nil, err
	}
	tok, err := s.tokens.IssueLegacy(u.ID, string(u.Role))
	if err != nil {
		return nil, fail(http.StatusInternalServerError, "auth.token_generation_failed")
	}
	return Response{
		"message":      M("auth.quick_login_success"),
		"token":        tok,
		"access_token": tok,
		"role":         u.Role,
		"email":        u.Email,
	}, nil
}

// Register creates an account. The role defaults to field_worker.
func (s *Service) Register(ctx context.Context, p Payload) (Response, error) {
	email, password := p.Str("email"), p.Str("password")
	if email == "" || password == "" {
		return nil, badRequest("auth.email_password_required")
	}
	role := model.Role(p.Str("role"))
	if role == "" {
		role = model.RoleFieldWorker
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, fail(http.StatusConflict, "auth.user_exists")
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Email:           email,
		PasswordHash:    hash,
		Role:            role,
		FullName:        p.Str("fullName"),
		PhoneNumber:     p.Str("phoneNumber"),
		ControllerEmail: p.Str("controller_email"),
		CreatedAt:       s.clockNow().UTC(),
		IsActive:        true,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, fail(http.StatusConflict, "auth.user_exists")
		}
		return nil, err
	}
	logging.Infof("user registered: %s (%s)", email, role)
	return Response{
		"message": M("auth.register_success"),
		"user_id": u.ID,
		"email":   u.Email,
		"role":    u.Role,
	}, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// GetUser returns the public profile of an account.
func (s *Service) GetUser(ctx context.Context, email string) (Response, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("auth.user_not_found")
	}
	if err != nil {
		return nil, err
	}
	created := ""
	if !u.CreatedAt.IsZero() {
		created = u.CreatedAt.Format(time.RFC3339Nano)
	}
	return Response{
		"_id":              u.ID,
		"email":            u.Email,
		"role":             u.Role,
		"full_name":        orNA(u.FullName),
		"phone_number":     orNA(u.PhoneNumber),
		"controller_email": orNA(u.ControllerEmail),
		"phone":            u.Phone,
		"state":            u.State,
		"city":             u.City,
		"created_at":       created,
		"is_active":        u.IsActive,
	}, nil
}

// ValidateToken reports whether a token is currently valid.
func (s *Service) ValidateToken(_ context.Context, p Payload) (Response, error) {
	tok := p.Str("token")
	if tok == "" {
		return nil, badRequest("auth.token_required")
	}
	claims, err := s.tokens.Parse(tok)
	if err != nil {
		return Response{"valid": false, "error": M("auth.invalid_token")}, nil
	}
	return Response{"valid": true, "user_id": claims.UserID, "role": claims.Role}, nil
}

// ChangePassword replaces a password after checking the current one and the
// password policy.
func (s *Service) ChangePassword(ctx context.Context, p Payload) (Response, error) {
	email, current, next := p.Str("email"), p.Str("currentPassword"), p.Str("newPassword")
	if email == "" || current == "" || next == "" {
		return nil, badRequest("auth.change_password_required")
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("auth.user_not_found")
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, current) {
		return nil, fail(http.StatusUnauthorized, "auth.current_password_incorrect")
	}
	switch err := auth.ValidatePasswordPolicy(next); {
	case errors.Is(err, auth.ErrPasswordTooShort):
		return nil, badRequest("auth.password_too_short")
	case errors.Is(err, auth.ErrPasswordComplexity):
		return nil, badRequest("auth.password_complexity")
	case err != nil:
		return nil, err
	}
	if auth.CheckPassword(u.PasswordHash, next) {
		return nil, badRequest("auth.password_same")
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateUserPassword(ctx, email, hash); err != nil {
		logging.Errorf("password update for %s failed: %v", email, err)
		return nil, fail(http.StatusInternalServerError, "auth.password_update_failed")
	}
	logging.Infof("password changed for %s", email)
	return Response{"message": M("auth.password_changed"), "email": email}, nil
}

// FieldWorkers lists the field workers reporting to a controller.
func (s *Service) FieldWorkers(ctx context.Context, controllerEmail string) (Response, error) {
	controllerEmail = strings.TrimSpace(controllerEmail)
	if controllerEmail == "" || strings.EqualFold(controllerEmail, "null") {
		return nil, badRequest("attendance.invalid_controller_param").
			With("details", M("attendance.invalid_controller_param_details"))
	}
	emails, err := s.fieldWorkerEmails(ctx, controllerEmail)
	if err != nil {
		return nil, err
	}
	return Response{
		"users":            emails,
		"count":            len(emails),
		"controller_email": controllerEmail,
	}, nil
}

// fieldWorkerEmails resolves a controller's field workers. It fails with 404
// when the email is not a controller.
func (s *Service) fieldWorkerEmails(ctx context.Context, controllerEmail string) ([]string, error) {
	c, err := s.store.GetUserByEmail(ctx, controllerEmail)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if err != nil || c.Role != model.RoleController {
		return nil, notFound("attendance.controller_not_found").
			With("details", M("attendance.controller_not_found_details"))
	}
	workers, err := s.store.ListFieldWorkers(ctx, controllerEmail)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(workers))
	for _, w := range workers {
		emails = append(emails, w.Email)
	}
	return emails, nil
}
