package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gophpeek/guardian/internal/registry"
	"github.com/gophpeek/guardian/internal/statusview"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the process table of a running guardian instance",
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfigOrExit()

	resp, err := httpClient.Get(metricsBaseURL(cfg) + "/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not reach a running guardian instance: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		fmt.Fprintf(os.Stderr, "guardian instance returned status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	var snapshots []registry.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshots); err != nil {
		fmt.Fprintf(os.Stderr, "invalid status response: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(statusview.Render(snapshots))
}
