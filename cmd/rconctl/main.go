// Command rconctl is a demo/operational CLI over the rconv2 client library:
// a single Execute over a scoped connection, a pool fan-out, and a
// Prometheus exporter.
// It is an external collaborator of the core package (SPEC_FULL.md §1), not
// part of it: rconv2 itself never imports cobra, viper or gin.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "rconctl",
	Short:         "Operate an RCON v2 game server connection",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "optional YAML config file, live-reloaded while the process runs")
	rootCmd.AddCommand(execCmd, poolExecCmd, serveMetricsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
