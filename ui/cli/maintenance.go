// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/fieldops/fieldaudit/internal/core"
	"github.com/fieldops/fieldaudit/internal/i18n"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// runMaintenance opens the store, builds a service and prints the JSON
// result of op with messages translated.
func runMaintenance(cmd *cobra.Command, op func(*core.Service, context.Context) (core.Response, error)) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	svc, _ := newService(st, prometheus.NewRegistry())
	resp, err := op(svc, cmd.Context())
	if err != nil {
		return cliError(err)
	}
	if m, ok := resp["message"].(core.Msg); ok {
		resp["message"] = i18n.T(m.ID, m.Data)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

var migrateLegacyCmd = &cobra.Command{
	Use:   "migrate-legacy-audits",
	Short: "Move legacy per-session counters into the sessions structure",
	Long: `Rewrites school audits that still carry session1..session3 student and
winner counters into the sessions map and recomputes total_students.
Audits already migrated are left alone, so the command can be rerun.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMaintenance(cmd, (*core.Service).MigrateLegacyAudits)
	},
}

var convertSharePointCmd = &cobra.Command{
	Use:   "convert-sharepoint-urls",
	Short: "Resolve stored SharePoint sharing links to OneDrive file ids",
	Long: `School audits whose photo references are SharePoint sharing links are
resolved through the Graph API and rewritten as OneDrive file ids. The
original URLs are kept in original_image_urls. Needs OneDrive credentials.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMaintenance(cmd, (*core.Service).ConvertSharePointURLs)
	},
}
