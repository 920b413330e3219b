// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.
package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fieldops/fieldaudit/internal/config"
	"github.com/fieldops/fieldaudit/internal/core"
	"github.com/fieldops/fieldaudit/internal/db"
	"github.com/fieldops/fieldaudit/internal/i18n"
	"github.com/fieldops/fieldaudit/internal/model"
	"github.com/spf13/cobra"
)

func TestApplyDefaultFlags_AddsFlags(t *testing.T) {
	cmd := &cobra.Command{}
	applyDefaultFlags(cmd)
	applyDefaultFlags(cmd)

	if cmd.Flags().Lookup("database.type") == nil {
		t.Fatalf("database.type flag not present")
	}
	if cmd.Flags().Lookup("database.dsn") == nil {
		t.Fatalf("database.dsn flag not present")
	}
}

func TestGetConfigPathFromCli_FlagNotSet(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file")

	p, err := getConfigPathFromCli(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil path when flag not set, got %v", *p)
	}
}

func TestGetConfigPathFromCli_WithValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldaudit.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file")
	if err := cmd.Flags().Set("config", path); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	p, err := getConfigPathFromCli(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || *p != path {
		t.Fatalf("expected path %s, got %v", path, p)
	}
}

func TestGetConfigPathFromCli_MissingFile(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file")
	_ = cmd.Flags().Set("config", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := getConfigPathFromCli(cmd); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	// A second build must not panic on duplicate flag definitions.
	_ = NewRootCmd()

	for _, path := range [][]string{
		{"serve"}, {"user", "add"}, {"user", "passwd"}, {"backup"}, {"restore"},
		{"migrate"}, {"db-maintain"}, {"migrate-legacy-audits"}, {"convert-sharepoint-urls"}, {"config", "init"}, {"drive", "info"}, {"drive", "check"}, {"drive", "delete"}, {"version"},
	} {
		c, _, err := root.Find(path)
		if err != nil || c == root {
			t.Fatalf("subcommand %v not registered: %v", path, err)
		}
	}
	if serveCmd.Flags().Lookup("server.port") == nil {
		t.Fatalf("serve should carry --server.port")
	}
	if restoreCmd.Flags().ShorthandLookup("y") == nil {
		t.Fatalf("restore should carry -y")
	}
}

func TestBackupFileName(t *testing.T) {
	day := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		args []string
		want string
	}{
		{nil, "fieldaudit-backup-2025-03-14.json.zst"},
		{[]string{"nightly.json"}, "nightly.json.zst"},
		{[]string{"nightly.json.zst"}, "nightly.json.zst"},
	}
	for _, tc := range cases {
		if got := backupFileName(tc.args, day); got != tc.want {
			t.Fatalf("backupFileName(%v) = %q, want %q", tc.args, got, tc.want)
		}
	}
}

func openTestStore(t *testing.T, name string) db.Store {
	t.Helper()
	st, err := db.NewStoreFromDSN("sqlite", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestBackupRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openTestStore(t, "cli_backup_src")
	u := &model.User{
		Email:        "fw@example.com",
		PasswordHash: "hash",
		Role:         model.RoleFieldWorker,
		CreatedAt:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		IsActive:     true,
	}
	if err := src.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	data, err := src.ExportDataForBackup(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	data.SchemaVersion = backupSchemaVersion

	file := filepath.Join(t.TempDir(), "b.json.zst")
	if err := writeCompressedBackup(file, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := readCompressedBackup(file)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.SchemaVersion != backupSchemaVersion || len(got.Users) != 1 {
		t.Fatalf("unexpected backup contents: %+v", got)
	}

	dst := openTestStore(t, "cli_backup_dst")
	if err := dst.ImportDataFromBackup(ctx, got); err != nil {
		t.Fatalf("import: %v", err)
	}
	restored, err := dst.GetUserByEmail(ctx, "fw@example.com")
	if err != nil {
		t.Fatalf("restored user missing: %v", err)
	}
	if restored.Role != model.RoleFieldWorker || restored.PasswordHash != "hash" {
		t.Fatalf("unexpected restored user: %+v", restored)
	}
}

func TestReadCompressedBackup_NotZstd(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.json")
	if err := os.WriteFile(file, []byte(`{"users":[]}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readCompressedBackup(file); err == nil {
		t.Fatalf("expected error for uncompressed file")
	}
}

func TestCliError(t *testing.T) {
	i18n.Init("en")
	_, err := core.NewService(openTestStore(t, "cli_err"), nil).Register(context.Background(), core.Payload{})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if got := cliError(err).Error(); got != "Email and password are required" {
		t.Fatalf("unexpected message %q", got)
	}
	plain := errors.New("boom")
	if cliError(plain) != plain {
		t.Fatalf("non-service errors should pass through")
	}
}

func TestConfigInit_WritesRandomSecret(t *testing.T) {
	i18n.Init("en")
	_ = NewRootCmd()
	orig := appConfig
	defer func() { appConfig = orig }()
	appConfig = config.Config{
		Server: config.ServerConfig{Port: 9000},
		Auth:   config.AuthConfig{SecretKey: config.FallbackSecretKey},
	}
	out := filepath.Join(t.TempDir(), "fieldaudit.yaml")
	if err := configInitCmd.Flags().Set("output", out); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	defer func() { _ = configInitCmd.Flags().Set("output", "") }()

	if err := configInitCmd.RunE(configInitCmd, nil); err != nil {
		t.Fatalf("config init: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(b), config.FallbackSecretKey) {
		t.Fatalf("development secret must not be written:\n%s", b)
	}
	if !strings.Contains(string(b), "port: 9000") {
		t.Fatalf("expected server port in output:\n%s", b)
	}
	if appConfig.Auth.SecretKey != config.FallbackSecretKey {
		t.Fatalf("running config must not change")
	}
	if err := configInitCmd.RunE(configInitCmd, nil); err == nil {
		t.Fatalf("expected refusal to overwrite without --force")
	}
}
