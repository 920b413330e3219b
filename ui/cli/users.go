// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fieldops/fieldaudit/internal/auth"
	"github.com/fieldops/fieldaudit/internal/core"
	"github.com/fieldops/fieldaudit/internal/i18n"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword prompts on the terminal without echo. Piped input is read
// as a single line.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newPassword() (string, error) {
	pw, err := readPassword(i18n.T("cli.password_prompt"))
	if err != nil {
		return "", err
	}
	if err := auth.ValidatePasswordPolicy(pw); err != nil {
		return "", err
	}
	again, err := readPassword(i18n.T("cli.password_confirm"))
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", errors.New(i18n.T("cli.password_mismatch"))
	}
	return pw, nil
}

var userAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Create a user account",
	Example: `  fieldaudit user add boss@example.com --role controller --name "Priya Shah"
  fieldaudit user add asha@example.com --controller boss@example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		name, _ := cmd.Flags().GetString("name")
		controller, _ := cmd.Flags().GetString("controller")
		pw, err := newPassword()
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		svc, _ := newService(st, nil)
		resp, err := svc.Register(cmd.Context(), core.Payload{
			"email":            args[0],
			"password":         pw,
			"role":             role,
			"fullName":         name,
			"controller_email": controller,
		})
		if err != nil {
			return cliError(err)
		}
		fmt.Println(i18n.T("cli.user_created", map[string]any{"Email": args[0], "ID": resp["user_id"]}))
		return nil
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <email>",
	Short: "Set a new password for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := newPassword()
		if err != nil {
			return err
		}
		hash, err := auth.HashPassword(pw)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		if _, err := st.GetUserByEmail(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		if err := st.UpdateUserPassword(cmd.Context(), args[0], hash); err != nil {
			return err
		}
		fmt.Println(i18n.T("cli.password_updated", map[string]any{"Email": args[0]}))
		return nil
	},
}

// cliError renders a service error in the configured language.
func cliError(err error) error {
	if e, ok := core.AsError(err); ok {
		if len(e.Msg.Data) == 0 {
			return errors.New(i18n.T(e.Msg.ID))
		}
		return errors.New(i18n.T(e.Msg.ID, e.Msg.Data))
	}
	return err
}
