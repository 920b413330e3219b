// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// This file contains the PostgreSQL implementation of the database store.
package db

import (
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// PostgresStore is the PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	bunStore
}
