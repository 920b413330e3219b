// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fieldops/fieldaudit/internal/db"
	"github.com/fieldops/fieldaudit/internal/i18n"
	"github.com/fieldops/fieldaudit/internal/model"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
)

// backupSchemaVersion is written into every backup file.
const backupSchemaVersion = 1

var assumeYes bool

// backupFileName returns the output path for a backup, defaulting to a
// dated name and always ending in .zst.
func backupFileName(args []string, now time.Time) string {
	if len(args) == 0 || args[0] == "" {
		return fmt.Sprintf("fieldaudit-backup-%s.json.zst", now.Format("2006-01-02"))
	}
	if strings.HasSuffix(args[0], ".zst") {
		return args[0]
	}
	return args[0] + ".zst"
}

var backupCmd = &cobra.Command{
	Use:   "backup [output-file]",
	Short: "Create a compressed (zstd) JSON backup of the database",
	Long: `Dumps users, mystery audits, school audits, assignments and the audit log
into a single Zstandard-compressed JSON file. '.zst' is appended to the
output name when missing; without a name 'fieldaudit-backup-YYYY-MM-DD.json.zst'
is used.`,
	Example: `  fieldaudit backup
  fieldaudit backup nightly.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := backupFileName(args, time.Now())
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		fmt.Println(i18n.T("cli.backup_starting"))
		data, err := st.ExportDataForBackup(cmd.Context())
		if err != nil {
			return fmt.Errorf("%s: %w", i18n.T("cli.backup_error_export"), err)
		}
		data.SchemaVersion = backupSchemaVersion
		data.CreatedAt = time.Now().UTC()
		if err := writeCompressedBackup(out, data); err != nil {
			return err
		}
		fmt.Println(i18n.T("cli.backup_success", map[string]any{"File": out}))
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Replace the database contents with a backup",
	Long: `Reads a backup written by 'fieldaudit backup' and imports it inside one
transaction. All existing rows are deleted first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readCompressedBackup(args[0])
		if err != nil {
			return err
		}
		if data.SchemaVersion > backupSchemaVersion {
			return errors.New(i18n.T("cli.restore_newer_schema", map[string]any{"Version": data.SchemaVersion}))
		}
		if !assumeYes {
			ans := promptForConfirmation(i18n.T("cli.restore_confirm") + " ")
			if ans != "yes" && ans != "y" {
				fmt.Println(i18n.T("cli.aborted"))
				return nil
			}
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		if err := st.ImportDataFromBackup(cmd.Context(), data); err != nil {
			return fmt.Errorf("%s: %w", i18n.T("cli.restore_error"), err)
		}
		fmt.Println(i18n.T("cli.restore_success", map[string]any{
			"Users":  len(data.Users),
			"Audits": len(data.SchoolAudits) + len(data.MysteryAudits),
		}))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate --target-type <db-type> --target-dsn <dsn>",
	Short: "Copy all data from the configured database into another one",
	Long: `Exports everything from the configured database, connects to the target,
applies the schema there and performs a full restore into it. The target's
existing rows are replaced.`,
	Example: `  fieldaudit migrate --target-type postgres --target-dsn "postgres://audit:secret@db/fieldaudit"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		targetType, _ := cmd.Flags().GetString("target-type")
		targetDsn, _ := cmd.Flags().GetString("target-dsn")
		if targetType == "" || targetDsn == "" {
			return errors.New(i18n.T("cli.migrate_flags_required"))
		}
		src, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()

		fmt.Println(i18n.T("cli.backup_starting"))
		data, err := src.ExportDataForBackup(cmd.Context())
		if err != nil {
			return fmt.Errorf("%s: %w", i18n.T("cli.backup_error_export"), err)
		}
		dst, err := db.NewStoreFromDSN(targetType, targetDsn)
		if err != nil {
			return errors.New(i18n.T("cli.error_init_db", err))
		}
		defer func() { _ = dst.Close() }()
		if err := dst.ImportDataFromBackup(cmd.Context(), data); err != nil {
			return fmt.Errorf("%s: %w", i18n.T("cli.restore_error"), err)
		}
		fmt.Println(i18n.T("cli.migrate_success", map[string]any{"Type": targetType}))
		return nil
	},
}

var dbMaintainCmd = &cobra.Command{
	Use:   "db-maintain",
	Short: "Run engine specific database maintenance",
	Long: `SQLite: PRAGMA optimize, VACUUM and a WAL checkpoint.
Postgres: VACUUM ANALYZE.
MySQL: OPTIMIZE TABLE on every table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.RunDBMaintenance(appConfig.Database.Type, appConfig.Database.Dsn); err != nil {
			return fmt.Errorf("%s: %w", i18n.T("cli.maintenance_failed"), err)
		}
		fmt.Println(i18n.T("cli.maintenance_done"))
		return nil
	},
}

// promptForConfirmation displays a prompt and reads a line from stdin.
func promptForConfirmation(prompt string) string {
	fmt.Print(prompt)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(strings.ToLower(answer))
}

func readCompressedBackup(filename string) (*model.BackupData, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open backup file: %w", err)
	}
	defer func() { _ = file.Close() }()

	zr, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("could not create zstd reader: %w", err)
	}
	defer zr.Close()

	var data model.BackupData
	if err := json.NewDecoder(zr).Decode(&data); err != nil {
		return nil, fmt.Errorf("could not decode backup: %w", err)
	}
	return &data, nil
}

// writeCompressedBackup streams indented JSON through a zstd encoder.
func writeCompressedBackup(filename string, data *model.BackupData) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	zw, err := zstd.NewWriter(file)
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("could not create zstd writer: %w", err)
	}
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		_ = zw.Close()
		_ = file.Close()
		return fmt.Errorf("could not encode backup: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = file.Close()
		return fmt.Errorf("could not flush zstd writer: %w", err)
	}
	return file.Close()
}
