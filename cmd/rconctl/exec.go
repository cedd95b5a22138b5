package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ashgrove/rconv2"
	"github.com/ashgrove/rconv2/config"
)

var (
	execKeyringUser string
	execVersion     int
)

var execCmd = &cobra.Command{
	Use:   "exec <command> [body]",
	Short: "Run a single command over one scoped (unsupervised) connection",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runExec,
}

func init() {
	config.RegisterFlags(execCmd)
	execCmd.Flags().StringVar(&execKeyringUser, "password-from-keyring", "", "resolve the password from the OS keychain under this username instead of --password")
	execCmd.Flags().IntVar(&execVersion, "version", 2, "command version")
}

func runExec(cmd *cobra.Command, args []string) error {
	loader, err := config.NewLoader(cmd)
	if err != nil {
		return err
	}
	if err := loader.UseConfigFile(configFile, nil); err != nil {
		return err
	}

	log := logrus.NewEntry(logrus.StandardLogger()).WithField("component", "rconctl")
	cfg, err := loader.Load(log, nil)
	if err != nil {
		return err
	}

	pw, err := resolvePassword(cfg.Password, execKeyringUser)
	if err != nil {
		return err
	}
	cfg.Password = pw

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, err := rconv2.OpenScoped(ctx, cfg)
	if err != nil {
		return fmt.Errorf("rconctl: connect: %w", err)
	}
	defer sess.Close()

	var body any
	if len(args) == 2 {
		body = args[1]
	}

	start := time.Now()
	result, err := sess.Execute(ctx, args[0], execVersion, body)
	if err != nil {
		return fmt.Errorf("rconctl: %s failed after %s: %w", args[0], humanize.RelTime(start, time.Now(), "", ""), err)
	}

	fmt.Println(strings.TrimSpace(result))
	return nil
}
