package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ashgrove/rconv2"
	"github.com/ashgrove/rconv2/config"
)

var (
	poolExecKeyringUser string
	poolExecVersion     int
	poolExecFile        string
)

var poolExecCmd = &cobra.Command{
	Use:   "pool-exec",
	Short: "Fan a batch of commands out across a pool of supervised connections",
	RunE:  runPoolExec,
}

func init() {
	config.RegisterFlags(poolExecCmd)
	poolExecCmd.Flags().StringVar(&poolExecKeyringUser, "password-from-keyring", "", "resolve the password from the OS keychain under this username instead of --password")
	poolExecCmd.Flags().IntVar(&poolExecVersion, "version", 2, "command version")
	poolExecCmd.Flags().StringVar(&poolExecFile, "commands", "-", "file of newline-separated commands to run (- for stdin)")
}

func runPoolExec(cmd *cobra.Command, args []string) error {
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
	pw, err := resolvePassword(cfg.Password, poolExecKeyringUser)
	if err != nil {
		return err
	}
	cfg.Password = pw

	commands, err := readCommands(poolExecFile)
	if err != nil {
		return err
	}

	pool := rconv2.NewPool(cfg)
	pool.Start()
	defer pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pool.WaitUntilConnected(ctx); err != nil {
		return fmt.Errorf("rconctl: pool never became ready: %w", err)
	}

	group, gctx := errgroup.WithContext(context.Background())
	results := make([]string, len(commands))
	var mu sync.Mutex
	for i, c := range commands {
		i, c := i, c
		group.Go(func() error {
			res, err := pool.Execute(gctx, c, poolExecVersion, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[i] = fmt.Sprintf("%s: error: %v", c, err)
			} else {
				results[i] = fmt.Sprintf("%s: %s", c, strings.TrimSpace(res))
			}
			return nil
		})
	}
	_ = group.Wait()

	for _, r := range results {
		fmt.Println(r)
	}
	return nil
}

func readCommands(path string) ([]string, error) {
	f := os.Stdin
	if path != "-" {
		var err error
		f, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("rconctl: open %s: %w", path, err)
		}
		defer f.Close()
	}

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}
