// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package core implements the fieldaudit operations: accounts, mystery
// audits, school activation audits, school assignments and their reports.
// It is transport agnostic; internal/httpapi maps requests onto it.
package core // import "github.com/fieldops/fieldaudit/internal/core"

import (
	"context"
	"time"

	"github.com/fieldops/fieldaudit/internal/auth"
	"github.com/fieldops/fieldaudit/internal/clock"
	"github.com/fieldops/fieldaudit/internal/db"
	"github.com/fieldops/fieldaudit/internal/storage/onedrive"
	"github.com/google/uuid"
)

// ImageStore is the subset of the drive client the service needs.
// *onedrive.Client satisfies it.
type ImageStore interface {
	Upload(ctx context.Context, data []byte, name, folder string) (*onedrive.Item, error)
	EnsureFolder(ctx context.Context, folder string) error
	Download(ctx context.Context, ref string) ([]byte, error)
	ResolveSharingURL(ctx context.Context, sharingURL string) (*onedrive.Item, error)
}

// RequestMeta carries the transport details some operations record.
type RequestMeta struct {
	// BaseURL is scheme://host used to build image proxy links.
	BaseURL       string
	RemoteAddr    string
	UserAgent     string
	Authorization string
}

// Service holds the dependencies shared by all operations.
type Service struct {
	store      db.Store
	tokens     *auth.Manager
	images     ImageStore
	now        clock.Clock
	suffix     func() string
	quickLogin bool
}

type Option func(*Service)

// WithImages sets the drive used for photos. Without one every upload is
// recorded as failed.
func WithImages(is ImageStore) Option {
	return func(s *Service) { s.images = is }
}

// WithClock pins the service clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.now = c }
}

// WithQuickLogin enables or disables password-less token issuance.
func WithQuickLogin(enabled bool) Option {
	return func(s *Service) { s.quickLogin = enabled }
}

// WithFilenameSuffix replaces the random suffix of uploaded file names.
func WithFilenameSuffix(fn func() string) Option {
	return func(s *Service) { s.suffix = fn }
}

func NewService(store db.Store, tokens *auth.Manager, opts ...Option) *Service {
	s := &Service{
		store:      store,
		tokens:     tokens,
		now:        clock.System,
		suffix:     randomSuffix,
		quickLogin: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store exposes the backing store for maintenance commands.
func (s *Service) Store() db.Store { return s.store }

func (s *Service) clockNow() time.Time { return s.now() }

// today is the IST calendar day as YYYY-MM-DD.
func (s *Service) today() string { return clock.Day(s.now()) }

func randomSuffix() string {
	return uuid.NewString()[:8]
}
