// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/fieldops/fieldaudit/internal/config"
	"github.com/fieldops/fieldaudit/internal/i18n"
	"github.com/spf13/cobra"
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to a YAML file",
	Long: `Writes the configuration currently in effect (defaults, environment, .env and
flags) as YAML. Without --output the file goes to the user config directory,
or /etc/fieldaudit with --system. The development secret key is replaced by a
random one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		system, _ := cmd.Flags().GetBool("system")
		output, _ := cmd.Flags().GetString("output")
		force, _ := cmd.Flags().GetBool("force")

		c := appConfig
		if c.Auth.SecretKey == config.FallbackSecretKey {
			key, err := randomSecret()
			if err != nil {
				return err
			}
			c.Auth.SecretKey = key
		}
		if output != "" && !force {
			if _, err := os.Stat(output); err == nil {
				return errors.New(i18n.T("cli.config_exists", map[string]any{"File": output}))
			}
		}
		path := output
		var err error
		if path == "" {
			path, err = config.WriteConfigFile(&c, system)
		} else {
			err = config.WriteConfigFileTo(&c, path)
		}
		if err != nil {
			return err
		}
		fmt.Println(i18n.T("cli.config_written", map[string]any{"File": path}))
		return nil
	},
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("could not generate secret key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
