package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gophpeek/guardian/internal/config"
)

// resolveConfigPath mirrors the teacher's priority order: CLI flag, then
// GUARDIAN_CONFIG, then config.Load's own "./guardian.toml" default.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return os.Getenv("GUARDIAN_CONFIG")
}

func loadConfigOrExit() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func metricsBaseURL(cfg *config.Config) string {
	port := cfg.Metrics.Port
	if port == 0 {
		port = 9090
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// httpClient is shared by the status/control CLI paths; short timeout since
// these only ever talk to a guardian instance on localhost.
var httpClient = &http.Client{Timeout: 5 * time.Second}
