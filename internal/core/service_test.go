// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/fieldops/fieldaudit/internal/auth"
	"github.com/fieldops/fieldaudit/internal/clock"
	"github.com/fieldops/fieldaudit/internal/db"
	"github.com/fieldops/fieldaudit/internal/model"
	"github.com/fieldops/fieldaudit/internal/storage/onedrive"
)

// fakeDrive is an in-memory ImageStore.
type fakeDrive struct {
	mu         sync.Mutex
	n          int
	files      map[string][]byte
	names      []string
	folders    []string
	shares     map[string]string
	failUpload bool
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{files: map[string][]byte{}, shares: map[string]string{}}
}

func (d *fakeDrive) Upload(_ context.Context, data []byte, name, folder string) (*onedrive.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failUpload {
		return nil, errors.New("drive unavailable")
	}
	d.n++
	id := fmt.Sprintf("FILE%020d", d.n)
	d.files[id] = data
	d.names = append(d.names, folder+"/"+name)
	return &onedrive.Item{ID: id, Name: name, WebURL: "https://onedrive.live.com/view/" + id}, nil
}

func (d *fakeDrive) EnsureFolder(_ context.Context, folder string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.folders = append(d.folders, folder)
	return nil
}

func (d *fakeDrive) Download(_ context.Context, ref string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.files[ref]
	if !ok {
		return nil, errors.New("item not found")
	}
	return b, nil
}

func (d *fakeDrive) ResolveSharingURL(_ context.Context, u string) (*onedrive.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.shares[u]
	if !ok {
		return nil, errors.New("sharing link not resolvable")
	}
	return &onedrive.Item{ID: id}, nil
}

func (d *fakeDrive) uploads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

// testNow is 10 Mar 2025, 10:30 AM IST.
var testNow = time.Date(2025, 3, 10, 10, 30, 0, 0, clock.IST)

var testImage = base64.StdEncoding.EncodeToString([]byte("not really a jpeg"))

func newTestService(t *testing.T, opts ...Option) (*Service, *fakeDrive) {
	t.Helper()
	st, err := db.NewStoreFromDSN("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	drive := newFakeDrive()
	base := []Option{
		WithImages(drive),
		WithClock(clock.Fixed(testNow)),
		WithFilenameSuffix(func() string { return "abcd1234" }),
	}
	s := NewService(st, auth.NewManager("test-secret"), append(base, opts...)...)
	return s, drive
}

// wantError asserts err is an *Error with the given status and message id.
func wantError(t *testing.T, err error, status int, id string) *Error {
	t.Helper()
	e, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error %d %s, got %v", status, id, err)
	}
	if e.Status != status || e.Msg.ID != id {
		t.Fatalf("got %d %s, want %d %s", e.Status, e.Msg.ID, status, id)
	}
	return e
}

func addUser(t *testing.T, s *Service, email string, role model.Role, controller string) {
	t.Helper()
	_, err := s.Register(context.Background(), Payload{
		"email":            email,
		"password":         "Secret123",
		"role":             string(role),
		"fullName":         "User " + email,
		"controller_email": controller,
	})
	if err != nil {
		t.Fatalf("Register %s: %v", email, err)
	}
}

func TestLoginAndTokens(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	addUser(t, s, "fw@example.com", model.RoleFieldWorker, "boss@example.com")

	if _, err := s.Register(ctx, Payload{"email": "fw@example.com", "password": "x"}); err == nil {
		t.Fatalf("expected conflict for duplicate registration")
	} else {
		wantError(t, err, http.StatusConflict, "auth.user_exists")
	}

	_, err := s.Login(ctx, Payload{"email": "fw@example.com", "password": "wrong"})
	wantError(t, err, http.StatusUnauthorized, "auth.invalid_password")
	_, err = s.Login(ctx, Payload{"email": "nobody@example.com", "password": "x"})
	wantError(t, err, http.StatusUnauthorized, "auth.invalid_email")
	_, err = s.Login(ctx, Payload{"email": "fw@example.com"})
	wantError(t, err, http.StatusBadRequest, "auth.email_password_required")

	resp, err := s.Login(ctx, Payload{"email": "fw@example.com", "password": "Secret123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp["role"] != model.RoleFieldWorker {
		t.Fatalf("role = %v", resp["role"])
	}

	refreshed, err := s.RefreshToken(ctx, Payload{"refresh_token": resp["refresh_token"]})
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	v, _ := s.ValidateToken(ctx, Payload{"token": refreshed["access_token"]})
	if v["valid"] != true || v["role"] != string(model.RoleFieldWorker) {
		t.Fatalf("ValidateToken = %v", v)
	}
	_, err = s.RefreshToken(ctx, Payload{"refresh_token": resp["access_token"]})
	wantError(t, err, http.StatusUnauthorized, "auth.invalid_refresh_token")
}

func TestQuickLogin(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	addUser(t, s, "fw@example.com", model.RoleFieldWorker, "")

	resp, err := s.QuickLogin(ctx, Payload{"email": "fw@example.com"})
	if err != nil {
		t.Fatalf("QuickLogin: %v", err)
	}
	if resp["token"] == "" || resp["token"] != resp["access_token"] {
		t.Fatalf("unexpected tokens: %v", resp)
	}
	_, err = s.QuickLogin(ctx, Payload{"email": "ghost@example.com"})
	wantError(t, err, http.StatusNotFound, "auth.user_not_found")

	off, _ := newTestService(t, WithQuickLogin(false))
	_, err = off.QuickLogin(ctx, Payload{"email": "fw@example.com"})
	wantError(t, err, http.StatusForbidden, "auth.quick_login_disabled")
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	addUser(t, s, "fw@example.com", model.RoleFieldWorker, "")

	cases := []struct {
		current, next string
		status        int
		id            string
	}{
		{"nope", "Better123", http.StatusUnauthorized, "auth.current_password_incorrect"},
		{"Secret123", "short", http.StatusBadRequest, "auth.password_too_short"},
		{"Secret123", "alllowercase1", http.StatusBadRequest, "auth.password_complexity"},
		{"Secret123", "Secret123", http.StatusBadRequest, "auth.password_same"},
	}
	for _, c := range cases {
		_, err := s.ChangePassword(ctx, Payload{"email": "fw@example.com", "currentPassword": c.current, "newPassword": c.next})
		wantError(t, err, c.status, c.id)
	}

	if _, err := s.ChangePassword(ctx, Payload{"email": "fw@example.com", "currentPassword": "Secret123", "newPassword": "Better123"}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := s.Login(ctx, Payload{"email": "fw@example.com", "password": "Better123"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestGetUserAndFieldWorkers(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	addUser(t, s, "boss@example.com", model.RoleController, "")
	addUser(t, s, "fw1@example.com", model.RoleFieldWorker, "boss@example.com")
	addUser(t, s, "fw2@example.com", model.RoleFieldWorker, "boss@example.com")

	u, err := s.GetUser(ctx, "fw1@example.com")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if _, ok := u["password_hash"]; ok {
		t.Fatalf("password hash leaked: %v", u)
	}
	if u["phone_number"] != "N/A" || u["is_active"] != true {
		t.Fatalf("unexpected defaults: %v", u)
	}

	resp, err := s.FieldWorkers(ctx, "boss@example.com")
	if err != nil {
		t.Fatalf("FieldWorkers: %v", err)
	}
	if resp["count"] != 2 {
		t.Fatalf("count = %v", resp["count"])
	}
	_, err = s.FieldWorkers(ctx, "null")
	wantError(t, err, http.StatusBadRequest, "attendance.invalid_controller_param")
	_, err = s.FieldWorkers(ctx, "fw1@example.com")
	wantError(t, err, http.StatusNotFound, "attendance.controller_not_found")
}
