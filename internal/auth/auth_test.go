// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.
package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssuePairAndParse(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	m := NewManager("secret", WithClock(func() time.Time { return now }))

	pair, err := m.IssuePair("u1", "controller")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	access, err := m.Parse(pair.AccessToken)
	if err != nil {
		t.Fatalf("Parse access: %v", err)
	}
	if access.UserID != "u1" || access.Role != "controller" || access.Type != TypeAccess {
		t.Fatalf("unexpected access claims: %+v", access)
	}
	if got := access.ExpiresAt.Time.Sub(now); got != 2*time.Hour {
		t.Fatalf("access ttl = %s", got)
	}
	refresh, err := m.Parse(pair.RefreshToken)
	if err != nil {
		t.Fatalf("Parse refresh: %v", err)
	}
	if refresh.Type != TypeRefresh || refresh.ExpiresAt.Time.Sub(now) != 7*24*time.Hour {
		t.Fatalf("unexpected refresh claims: %+v", refresh)
	}
}

func TestParse_ExpiredAndForeign(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	clockNow := now
	m := NewManager("secret", WithClock(func() time.Time { return clockNow }))
	pair, _ := m.IssuePair("u1", "field_worker")

	clockNow = now.Add(3 * time.Hour)
	if _, err := m.Parse(pair.AccessToken); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
	if !m.IsExpired(pair.AccessToken) {
		t.Fatalf("IsExpired should report true")
	}

	other := NewManager("other-secret", WithClock(func() time.Time { return clockNow }))
	if _, err := other.Parse(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
	if _, err := m.Parse("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	m := NewManager("secret")
	pair, _ := m.IssuePair("u1", "field_worker")

	tok, err := m.Refresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("Parse refreshed: %v", err)
	}
	if claims.Type != "" || claims.UserID != "u1" {
		t.Fatalf("refreshed token should be an untyped legacy token: %+v", claims)
	}
	if _, err := m.Refresh(pair.AccessToken); !errors.Is(err, ErrWrongType) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
}

func TestPasswords(t *testing.T) {
	h, err := HashPassword("Secret123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(h, "Secret123") || CheckPassword(h, "secret123") || CheckPassword("", "x") {
		t.Fatalf("CheckPassword gave wrong answers")
	}

	cases := map[string]error{
		"Short1":       ErrPasswordTooShort,
		"alllower123":  ErrPasswordComplexity,
		"ALLUPPER123":  ErrPasswordComplexity,
		"NoDigitsHere": ErrPasswordComplexity,
		"Valid1Pass":   nil,
	}
	for pw, want := range cases {
		if got := ValidatePasswordPolicy(pw); !errors.Is(got, want) {
			t.Fatalf("ValidatePasswordPolicy(%q) = %v, want %v", pw, got, want)
		}
	}
}
