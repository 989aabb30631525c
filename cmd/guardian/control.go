package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gophpeek/guardian/internal/metrics"
)

var startCmd = &cobra.Command{
	Use:   "start <process>",
	Short: "Ask a running guardian instance to start one managed process",
	Args:  cobra.ExactArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { runControl("start", args[0]) },
}

var stopCmd = &cobra.Command{
	Use:   "stop <process>",
	Short: "Ask a running guardian instance to stop one managed process",
	Args:  cobra.ExactArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { runControl("stop", args[0]) },
}

var restartCmd = &cobra.Command{
	Use:   "restart <process>",
	Short: "Ask a running guardian instance to restart one managed process",
	Args:  cobra.ExactArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { runControl("restart", args[0]) },
}

func runControl(action, process string) {
	cfg := loadConfigOrExit()

	body, _ := json.Marshal(metrics.ControlRequest{Action: action, Process: process})
	resp, err := httpClient.Post(metricsBaseURL(cfg)+"/control", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not reach a running guardian instance: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		detail, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "%s %s failed: %s\n", action, process, detail)
		os.Exit(1)
	}

	fmt.Printf("%s: %s ok\n", action, process)
}
