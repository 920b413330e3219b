// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"fmt"

	"github.com/go-sql-driver/mysql" // MySQL driver
)

// MySQLStore is the MySQL implementation of the Store interface.
type MySQLStore struct {
	bunStore
}

// normalizeMySQLDSN makes DATETIME columns scan into time.Time and lets the
// migration files run as one multi-statement exec.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN(), nil
}
