package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
)

const keyringService = "rconctl"

// resolvePassword returns flagPassword unless it's empty and keyringUser is
// set, in which case the password is pulled from the OS keychain so it
// never has to sit in shell history or a config file for interactive use
// (SPEC_FULL.md §10, "Secrets").
func resolvePassword(flagPassword, keyringUser string) (string, error) {
	if flagPassword != "" || keyringUser == "" {
		return flagPassword, nil
	}
	pw, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		return "", fmt.Errorf("rconctl: read password for %q from keyring: %w", keyringUser, err)
	}
	return pw, nil
}

func storePassword(keyringUser, password string) error {
	return keyring.Set(keyringService, keyringUser, password)
}

var keyringSetCmd = &cobra.Command{
	Use:   "keyring-set <user>",
	Short: "Save an RCON password in the OS keychain for later use with --password-from-keyring",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyringSet,
}

func init() {
	rootCmd.AddCommand(keyringSetCmd)
}

func runKeyringSet(cmd *cobra.Command, args []string) error {
	user := args[0]

	fmt.Fprintf(cmd.OutOrStdout(), "password for %q: ", user)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return fmt.Errorf("rconctl: read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("rconctl: empty password")
	}

	if err := storePassword(user, password); err != nil {
		return fmt.Errorf("rconctl: store password for %q: %w", user, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored password for %q in the OS keychain\n", user)
	return nil
}
