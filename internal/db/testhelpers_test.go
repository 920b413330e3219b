// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"testing"
)

// WithTestStore opens an in-memory sqlite Store for the duration of fn.
func WithTestStore(t *testing.T, fn func(s *SqliteStore)) {
	t.Helper()

	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	st, err := NewStoreFromDSN("sqlite", dsn)
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	s, ok := st.(*SqliteStore)
	if !ok {
		t.Fatalf("store is not *SqliteStore")
	}
	defer func() { _ = s.Close() }()

	fn(s)
}
