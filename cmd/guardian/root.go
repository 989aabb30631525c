package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var cfgFile string

// rootCmd is the base command; with no subcommand it runs the supervisor
// daemon, matching the teacher's "serve is the default" convention.
var rootCmd = &cobra.Command{
	Use:   "guardian",
	Short: "Process supervisor for a fleet of dependent long-running processes",
	Long: `Guardian supervises a small fleet of long-running, interdependent
processes on a single host: dependency-ordered startup and shutdown, a
five-probe health model, and a prioritized recovery engine.

Examples:
  guardian                    # start the supervisor daemon
  guardian check-config       # validate the config and exit
  guardian status             # query a running instance's process table
  guardian logs web --follow  # tail a managed process's log file
  guardian restart web        # ask a running instance to restart one process`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to guardian.toml (default: $GUARDIAN_CONFIG or ./guardian.toml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
}
