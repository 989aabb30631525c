package main

import (
	"fmt"
	"os"

	"github.com/gophpeek/guardian/internal/config"
	"github.com/spf13/cobra"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration file and exit",
	Run:   runCheckConfig,
}

func runCheckConfig(cmd *cobra.Command, args []string) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		os.Exit(1)
	}

	order, err := cfg.StartOrder()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("configuration is valid")
	fmt.Printf("  processes:        %d\n", len(cfg.Processes))
	fmt.Printf("  start order:      %v\n", order)
	fmt.Printf("  log level/format: %s/%s\n", cfg.Logging.Level, cfg.Logging.Format)
	fmt.Printf("  recovery policy:  max_restarts=%d window=%ds give_up=%s\n",
		cfg.Recovery.MaxRestarts, cfg.Recovery.RestartWindow, cfg.Recovery.GiveUpAction)
}
