// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fieldops/fieldaudit/internal/auth"
	"github.com/fieldops/fieldaudit/internal/config"
	"github.com/fieldops/fieldaudit/internal/core"
	"github.com/fieldops/fieldaudit/internal/db"
	"github.com/fieldops/fieldaudit/internal/storage/onedrive"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
)

type memDrive struct {
	files map[string][]byte
}

func (d *memDrive) Upload(_ context.Context, data []byte, name, _ string) (*onedrive.Item, error) {
	d.files[name] = data
	return &onedrive.Item{ID: name, Name: name}, nil
}

func (d *memDrive) EnsureFolder(context.Context, string) error { return nil }

func (d *memDrive) Download(_ context.Context, ref string) ([]byte, error) {
	b, ok := d.files[ref]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func (d *memDrive) ResolveSharingURL(context.Context, string) (*onedrive.Item, error) {
	return nil, errors.New("not supported")
}

type testEnv struct {
	srv    *Server
	tokens *auth.Manager
	drive  *memDrive
}

func newTestEnv(t *testing.T, enforce bool) *testEnv {
	t.Helper()
	return newTestEnvWithServer(t, enforce, config.ServerConfig{CORSOrigins: []string{"*"}})
}

func newTestEnvWithServer(t *testing.T, enforce bool, sc config.ServerConfig) *testEnv {
	t.Helper()
	st, err := db.NewStoreFromDSN("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	tokens := auth.NewManager("test-secret")
	drive := &memDrive{files: map[string][]byte{}}
	svc := core.NewService(st, tokens, core.WithImages(drive))
	srv := New(svc, tokens, Options{
		Server:      sc,
		EnforceAuth: enforce,
		Registry:    prometheus.NewRegistry(),
	})
	return &testEnv{srv: srv, tokens: tokens, drive: drive}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestRegisterAndLogin(t *testing.T) {
	e := newTestEnv(t, false)

	rec := e.do(t, http.MethodPost, "/api/auth/register",
		`{"email":"fw@example.com","password":"Secret123","fullName":"Asha"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("email=fw"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	form := httptest.NewRecorder()
	e.srv.ServeHTTP(form, req)
	if form.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("form login: %d", form.Code)
	}

	rec = e.do(t, http.MethodPost, "/api/auth/login", `{"email":"fw@example.com","password":"wrong"}`, nil)
	if rec.Code != http.StatusUnauthorized || decode(t, rec)["error"] != "Invalid password" {
		t.Fatalf("bad password: %d %s", rec.Code, rec.Body)
	}
	rec = e.do(t, http.MethodPost, "/api/auth/login", `{"email":"fw@example.com","password":"wrong"}`,
		map[string]string{"Accept-Language": "hi-IN,hi;q=0.9"})
	if decode(t, rec)["error"] != "अमान्य पासवर्ड" {
		t.Fatalf("hindi error: %s", rec.Body)
	}

	rec = e.do(t, http.MethodPost, "/api/auth/login", `{"email":"fw@example.com","password":"Secret123"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	if body["message"] != "Login successful" || body["role"] != "field_worker" || body["access_token"] == "" {
		t.Fatalf("unexpected login body: %v", body)
	}

	rec = e.do(t, http.MethodPost, "/api/auth/login", `{"email":`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("broken json: %d", rec.Code)
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t, false)
	if rec := e.do(t, http.MethodGet, "/api/nope", "", nil); rec.Code != http.StatusNotFound || decode(t, rec)["error"] != "Not found" {
		t.Fatalf("unknown route: %d %s", rec.Code, rec.Body)
	}
	if rec := e.do(t, http.MethodGet, "/api/auth/login", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestImageProxyRoute(t *testing.T) {
	e := newTestEnv(t, false)
	e.drive.files["ABCDEFGHIJKLMNOPQRSTUVWX"] = []byte("jpeg bytes")

	rec := e.do(t, http.MethodGet, "/api/school-audit/image/ABCDEFGHIJKLMNOPQRSTUVWX?resize=false", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "jpeg bytes" {
		t.Fatalf("image: %d %q", rec.Code, rec.Body)
	}
	if rec.Header().Get("Content-Type") != "image/jpeg" || rec.Header().Get("Cache-Control") != "public, max-age=86400" {
		t.Fatalf("unexpected headers: %v", rec.Header())
	}

	if rec := e.do(t, http.MethodGet, "/api/school-audit/image/UPLOAD_FAILED:%20boom", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("failed ref: %d %s", rec.Code, rec.Body)
	}
	if rec := e.do(t, http.MethodGet, "/api/school-audit/image/MISSINGMISSINGMISSING00", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing image: %d", rec.Code)
	}
}

func TestEnforceAuth(t *testing.T) {
	e := newTestEnv(t, true)
	if rec := e.do(t, http.MethodGet, "/api/attendance/stats/fw@example.com", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("without token: %d", rec.Code)
	}
	pair, err := e.tokens.IssuePair("u1", "field_worker")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if rec := e.do(t, http.MethodGet, "/api/attendance/stats/fw@example.com", "",
		map[string]string{"Authorization": "Bearer " + pair.RefreshToken}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token accepted: %d", rec.Code)
	}
	rec := e.do(t, http.MethodGet, "/api/attendance/stats/fw@example.com", "",
		map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	if rec.Code != http.StatusOK || decode(t, rec)["total_audits"] != float64(0) {
		t.Fatalf("with token: %d %s", rec.Code, rec.Body)
	}
	if rec := e.do(t, http.MethodPost, "/api/auth/validate-token", `{"token":"x"}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("auth routes stay public: %d", rec.Code)
	}
}

func TestControllerSummaryNeedsAuthorization(t *testing.T) {
	e := newTestEnv(t, false)
	rec := e.do(t, http.MethodGet, "/api/school-audit/controller-audit-summary/boss@example.com", "", nil)
	if rec.Code != http.StatusUnauthorized || decode(t, rec)["error"] != "Authorization header required" {
		t.Fatalf("summary: %d %s", rec.Code, rec.Body)
	}
	rec = e.do(t, http.MethodPost, "/api/school-audit/export-audits", `{"start_date":"2025-03-01"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("export without end date: %d", rec.Code)
	}
}

func TestMetricsAndCORS(t *testing.T) {
	e := newTestEnv(t, false)
	e.do(t, http.MethodGet, "/healthz", "", nil)

	rec := e.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rec.Body.String(), `fieldaudit_http_requests_total{code="200",method="GET",route="/healthz"} 1`) {
		t.Fatalf("metrics missing healthz counter:\n%s", rec.Body)
	}

	rec = e.do(t, http.MethodOptions, "/api/auth/login", "", map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": "POST",
	})
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight headers: %v", rec.Header())
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4242"
	if got := clientIP(req); got != "10.0.0.5" {
		t.Fatalf("clientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("clientIP = %q", got)
	}
}

func TestUntranslatedErrorFallsBackToEnglish(t *testing.T) {
	e := newTestEnv(t, false)
	rec := e.do(t, http.MethodGet, "/api/no-such-route", "", map[string]string{"Accept-Language": "hi-IN,hi;q=0.9"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decode(t, rec)["error"]; got != "Not found" {
		t.Fatalf("expected english fallback, got %v", got)
	}
}

func TestRequestTimeout(t *testing.T) {
	e := newTestEnvWithServer(t, false, config.ServerConfig{RequestTimeout: 20 * time.Millisecond})
	e.srv.handle(http.MethodGet, "/api/slow", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		<-r.Context().Done()
	})

	rec := e.do(t, http.MethodGet, "/api/slow", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON content type, got %q", ct)
	}
	if got := decode(t, rec)["error"]; got != "Request timed out" {
		t.Fatalf("unexpected timeout body %v", got)
	}

	rec = e.do(t, http.MethodGet, "/api/slow", "", map[string]string{"Accept-Language": "hi"})
	if got := decode(t, rec)["error"]; got != "अनुरोध का समय समाप्त हो गया" {
		t.Fatalf("expected hindi timeout message, got %v", got)
	}

	rec = e.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("fast requests must pass, got %d", rec.Code)
	}
}
