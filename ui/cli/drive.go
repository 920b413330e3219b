// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fieldops/fieldaudit/internal/i18n"
	"github.com/fieldops/fieldaudit/internal/storage/onedrive"
	"github.com/spf13/cobra"
)

// driveFiles is the part of the OneDrive client the drive commands use.
type driveFiles interface {
	FileInfo(ctx context.Context, ref string) (*onedrive.Item, error)
	ValidateFileID(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// openDrive is replaced in tests.
var openDrive = func() (driveFiles, error) {
	c := newDrive(nil)
	if c == nil {
		return nil, errors.New(i18n.T("cli.drive_not_configured"))
	}
	return c, nil
}

var driveInfoCmd = &cobra.Command{
	Use:   "info <file-id|sharing-url>",
	Short: "Show metadata of a stored photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDrive()
		if err != nil {
			return err
		}
		it, err := d.FileInfo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(it)
	},
}

var driveCheckCmd = &cobra.Command{
	Use:   "check <file-id>...",
	Short: "Report which file ids still exist on the drive",
	Long: `Checks each id against the drive. Exits with an error when any id is
missing, so it can be used from scripts after a restore.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDrive()
		if err != nil {
			return err
		}
		missing := 0
		for _, id := range args {
			ok, err := d.ValidateFileID(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			state := "ok"
			if !ok {
				state = "missing"
				missing++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, state)
		}
		if missing > 0 {
			return errors.New(i18n.T("cli.drive_missing", map[string]any{"Count": missing}))
		}
		return nil
	},
}

var driveDeleteCmd = &cobra.Command{
	Use:   "delete <file-id>",
	Short: "Delete a stored photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ans := promptForConfirmation(i18n.T("cli.drive_delete_confirm", map[string]any{"ID": args[0]}) + " ")
			if ans != "yes" && ans != "y" {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.aborted"))
				return nil
			}
		}
		d, err := openDrive()
		if err != nil {
			return err
		}
		if err := d.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.drive_deleted", map[string]any{"ID": args[0]}))
		return nil
	},
}
