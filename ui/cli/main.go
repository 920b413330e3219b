// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the root command, configuration loading and the shared
// bootstrap used by every subcommand.

package cli

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/fieldops/fieldaudit/buildvars"
	"github.com/fieldops/fieldaudit/internal/config"
	"github.com/fieldops/fieldaudit/internal/db"
	"github.com/fieldops/fieldaudit/internal/i18n"
	"github.com/fieldops/fieldaudit/internal/logging"
	"github.com/spf13/cobra"
)

const modulePath = "github.com/fieldops/fieldaudit"

var version = buildvars.VersionOrDefault("dev")
var gitCommit = commitOrDev()
var buildDate = "" // set at build time (RFC3339)
var cfgFile string
var verbose bool
var showVersionFlag bool

var appConfig config.Config

func commitOrDev() string {
	if buildvars.Commit != "" {
		return buildvars.Commit
	}
	return "dev"
}

// setupDefaultServices loads configuration and initializes logging and i18n.
// Commands that need the database open it themselves.
func setupDefaultServices(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		logging.Warnf("%v", err)
	}

	optionalConfigPath, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}
	appConfig, err = config.LoadConfig[config.Config](cmd, config.Defaults(), optionalConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	level := appConfig.Log.Level
	if verbose {
		level = "debug"
		db.SetDebug(true)
	}
	if err := logging.Setup(os.Stderr, level, appConfig.Log.Format); err != nil {
		return err
	}
	for _, w := range appConfig.ApplyFallbacks() {
		logging.Warnf("%s", w)
	}
	if err := appConfig.Validate(); err != nil {
		return err
	}

	i18n.Init(appConfig.Language)
	return nil
}

// openStore connects to the configured database and applies migrations.
func openStore() (db.Store, error) {
	st, err := db.NewStoreFromDSN(appConfig.Database.Type, appConfig.Database.Dsn)
	if err != nil {
		return nil, errors.New(i18n.T("cli.error_init_db", err))
	}
	return st, nil
}

// Execute runs the CLI entrypoint. main should call this and handle the
// process exit.
func Execute() error {
	return NewRootCmd().Execute()
}

func applyDefaultFlags(cmd *cobra.Command) {
	// NewRootCmd may run more than once in tests against the same package
	// level subcommands; pflag panics on duplicate definitions.
	if cmd.Flags().Lookup("database.type") == nil {
		cmd.Flags().String("database.type", config.FallbackDBType, "Database type (sqlite, postgres, mysql)")
	}
	if cmd.Flags().Lookup("database.dsn") == nil {
		cmd.Flags().String("database.dsn", config.FallbackDSN, "Database connection string (DSN)")
	}
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	if !cmd.Flags().Changed("config") {
		return nil, nil
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

func compositeVersion() string {
	v, c, d := resolveBuildVersion(nil)
	out := v
	if c != "" && c != "dev" {
		out += " (" + c + ")"
	}
	if d != "" {
		out += " built: " + d
	}
	return out
}

// NewRootCmd creates the root command. Tests call it for fresh instances.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fieldaudit",
		Short: "fieldaudit serves the field audit and school activation API.",
		Long: `fieldaudit records mystery-shopper audits and school activation audits
made by field workers, stores their photos on OneDrive and lets controllers
assign schools and export reports.

Running without a subcommand starts the HTTP server.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if showVersionFlag {
				fmt.Println(compositeVersion())
				os.Exit(0)
			}
			return setupDefaultServices(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
		SilenceUsage: true,
	}
	cmd.Version = compositeVersion()

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging, including SQL statements")
	cmd.PersistentFlags().BoolVarP(&showVersionFlag, "version", "V", false, "Print version and exit")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	cmd.PersistentFlags().String("language", "en", `Default message language ("en", "hi")`)
	applyDefaultFlags(cmd)
	applyServeFlags(cmd)

	for _, sub := range []*cobra.Command{serveCmd, userAddCmd, userPasswdCmd, backupCmd, restoreCmd, migrateCmd, dbMaintainCmd, migrateLegacyCmd, convertSharePointCmd, configInitCmd, driveInfoCmd, driveCheckCmd, driveDeleteCmd} {
		applyDefaultFlags(sub)
	}
	applyServeFlags(serveCmd)
	if restoreCmd.Flags().Lookup("yes") == nil {
		restoreCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation before wiping existing data")
	}
	if userAddCmd.Flags().Lookup("role") == nil {
		userAddCmd.Flags().String("role", "field_worker", "Role of the new user (field_worker or controller)")
		userAddCmd.Flags().String("name", "", "Full name")
		userAddCmd.Flags().String("controller", "", "Controller email for a field worker")
	}
	if configInitCmd.Flags().Lookup("output") == nil {
		configInitCmd.Flags().Bool("system", false, "Write to the system-wide config path")
		configInitCmd.Flags().StringP("output", "o", "", "Write to this file instead")
		configInitCmd.Flags().Bool("force", false, "Overwrite an existing --output file")
	}
	if driveDeleteCmd.Flags().Lookup("yes") == nil {
		driveDeleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	}
	if migrateCmd.Flags().Lookup("target-type") == nil {
		migrateCmd.Flags().String("target-type", "", "Target database type (sqlite, postgres, mysql)")
		migrateCmd.Flags().String("target-dsn", "", "Target database DSN")
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			v, c, d := resolveBuildVersion(nil)
			fmt.Printf("version: %s\n", v)
			fmt.Printf("commit: %s\n", c)
			if d != "" {
				fmt.Printf("built: %s\n", d)
			}
		},
	}
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	userCmd.AddCommand(userAddCmd, userPasswdCmd)
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and write configuration",
	}
	configCmd.AddCommand(configInitCmd)
	driveCmd := &cobra.Command{
		Use:   "drive",
		Short: "Inspect and clean up photos stored on OneDrive",
	}
	driveCmd.AddCommand(driveInfoCmd, driveCheckCmd, driveDeleteCmd)

	cmd.AddCommand(
		serveCmd,
		userCmd,
		configCmd,
		driveCmd,
		backupCmd,
		restoreCmd,
		migrateCmd,
		dbMaintainCmd,
		migrateLegacyCmd,
		convertSharePointCmd,
		versionCmd,
	)
	return cmd
}

// resolveBuildVersion computes the best-available version, commit and build
// date for the running binary. A nil info reads build info from the runtime.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := version
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	if info == nil {
		if local, ok := debug.ReadBuildInfo(); ok {
			info = local
		}
	}
	if info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		if (resolvedVersion == "dev" || resolvedVersion == "(devel)") && info.Deps != nil {
			for _, dep := range info.Deps {
				if dep.Path == modulePath && dep.Version != "" {
					resolvedVersion = dep.Version
					break
				}
			}
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}
	return resolvedVersion, resolvedCommit, resolvedDate
}
