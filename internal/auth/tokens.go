// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package auth issues and verifies the HS256 tokens used by the field app and
// hashes user passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Default lifetimes.
const (
	DefaultAccessTTL  = 2 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
	LegacyTTL         = 7 * 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrWrongType    = errors.New("wrong token type")
)

// Claims is the payload of every token. Type is empty for legacy tokens.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Type   string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a password login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Manager signs and verifies tokens with a shared secret.
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTLs overrides the access and refresh lifetimes.
func WithTTLs(access, refresh time.Duration) Option {
	return func(m *Manager) {
		if access > 0 {
			m.accessTTL = access
		}
		if refresh > 0 {
			m.refreshTTL = refresh
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager signing with secret.
func NewManager(secret string, opts ...Option) *Manager {
	m := &Manager{
		secret:     []byte(secret),
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) sign(userID, role, typ string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return s, nil
}

// IssuePair creates an access and a refresh token for a user.
func (m *Manager) IssuePair(userID, role string) (TokenPair, error) {
	access, err := m.sign(userID, role, TypeAccess, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.sign(userID, role, TypeRefresh, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueLegacy creates an untyped token valid for seven days. Older app
// builds only understand this form.
func (m *Manager) IssueLegacy(userID, role string) (string, error) {
	return m.sign(userID, role, "", LegacyTTL)
}

// Parse verifies signature and expiry and returns the claims.
func (m *Manager) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new legacy-style access token.
func (m *Manager) Refresh(refreshToken string) (string, error) {
	claims, err := m.Parse(refreshToken)
	if err != nil {
		return "", err
	}
	if claims.Type != TypeRefresh {
		return "", ErrWrongType
	}
	return m.IssueLegacy(claims.UserID, claims.Role)
}

// IsExpired reports whether token is expired. Invalid tokens count as expired.
func (m *Manager) IsExpired(token string) bool {
	_, err := m.Parse(token)
	return err != nil
}
