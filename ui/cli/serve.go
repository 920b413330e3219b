// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fieldops/fieldaudit/internal/auth"
	"github.com/fieldops/fieldaudit/internal/core"
	"github.com/fieldops/fieldaudit/internal/db"
	"github.com/fieldops/fieldaudit/internal/httpapi"
	"github.com/fieldops/fieldaudit/internal/logging"
	"github.com/fieldops/fieldaudit/internal/storage/onedrive"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Builds the whole application (configuration, database and migrations, token
manager, OneDrive client, router) and then listens on server.port, 8080 by
default or $PORT when set. SIGINT and SIGTERM trigger a graceful shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func applyServeFlags(cmd *cobra.Command) {
	if cmd.Flags().Lookup("server.port") == nil {
		cmd.Flags().Int("server.port", 8080, "Port to listen on")
	}
}

// app is the fully built server. Nothing listens until Serve.
type app struct {
	store  db.Store
	svc    *core.Service
	server *httpapi.Server
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logging.Warnf("closing database: %v", err)
	}
}

// newDrive returns the OneDrive client, or nil when credentials are missing.
func newDrive(reg prometheus.Registerer) *onedrive.Client {
	o := appConfig.OneDrive
	if !o.Enabled() {
		logging.Warnf("OneDrive credentials are not configured; photo uploads will be recorded as failed")
		return nil
	}
	return onedrive.New(onedrive.Config{
		TenantID:     o.TenantID,
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		RefreshToken: o.RefreshToken,
		RootFolder:   o.RootFolder,
		GraphURL:     o.GraphURL,
		AuthURL:      o.AuthURL,
	}, reg)
}

func newService(st db.Store, reg prometheus.Registerer) (*core.Service, *auth.Manager) {
	tokens := auth.NewManager(appConfig.Auth.SecretKey, auth.WithTTLs(appConfig.Auth.AccessTTL, appConfig.Auth.RefreshTTL))
	opts := []core.Option{core.WithQuickLogin(appConfig.Auth.QuickLogin)}
	if drive := newDrive(reg); drive != nil {
		opts = append(opts, core.WithImages(drive))
	}
	return core.NewService(st, tokens, opts...), tokens
}

func buildApp() (*app, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc, tokens := newService(st, reg)
	srv := httpapi.New(svc, tokens, httpapi.Options{
		Server:      appConfig.Server,
		EnforceAuth: appConfig.Auth.Enforce,
		Registry:    reg,
	})
	return &app{store: st, svc: svc, server: srv}, nil
}

func runServe(cmd *cobra.Command) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logging.Infof("fieldaudit %s starting (database %s)", compositeVersion(), appConfig.Database.Type)
	return a.server.ListenAndServe(ctx)
}
