// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// This file contains the SQLite implementation of the database store.
package db

import (
	"context"

	"github.com/uptrace/bun"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SqliteStore is the SQLite implementation of the Store interface.
type SqliteStore struct {
	bunStore
}

func newSqliteStore(bdb *bun.DB) *SqliteStore {
	// In-memory databases report "memory" here and keep their journal mode.
	if _, err := ExecRaw(context.Background(), bdb, "PRAGMA journal_mode=WAL;"); err != nil {
		dbLogf("db: sqlite journal_mode=WAL failed (ignored): %v", err)
	}
	if _, err := ExecRaw(context.Background(), bdb, "PRAGMA busy_timeout=5000;"); err != nil {
		dbLogf("db: sqlite busy_timeout failed (ignored): %v", err)
	}
	return &SqliteStore{bunStore{bun: bdb}}
}
