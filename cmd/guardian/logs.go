package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gophpeek/guardian/internal/logtail"
)

var (
	logsTail   int
	logsFollow bool
)

var logsCmd = &cobra.Command{
	Use:   "logs <process>",
	Short: "Tail a managed process's log file",
	Long: `Tail a managed process's configured health.log_file.

Examples:
  guardian logs web               # last 100 lines
  guardian logs web -n 20          # last 20 lines
  guardian logs web --follow       # keep tailing new writes`,
	Args: cobra.ExactArgs(1),
	Run:  runLogs,
}

func init() {
	logsCmd.Flags().IntVarP(&logsTail, "lines", "n", 100, "number of trailing lines to show")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep tailing the file for new writes")
}

func runLogs(cmd *cobra.Command, args []string) {
	name := args[0]
	cfg := loadConfigOrExit()

	spec, ok := cfg.Processes[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown process %q\n", name)
		os.Exit(1)
	}
	if spec.Health == nil || spec.Health.LogFile == "" {
		fmt.Fprintf(os.Stderr, "process %q has no health.log_file configured\n", name)
		os.Exit(1)
	}

	lines, err := logtail.LastLines(spec.Health.LogFile, logsTail)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read log: %v\n", err)
		os.Exit(1)
	}
	for _, l := range lines {
		fmt.Println(l)
	}

	if !logsFollow {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if err := logtail.Follow(ctx, spec.Health.LogFile, func(line string) {
		fmt.Println(line)
	}, logger); err != nil {
		fmt.Fprintf(os.Stderr, "follow failed: %v\n", err)
		os.Exit(1)
	}
}
