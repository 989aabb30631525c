package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gophpeek/guardian/internal/audit"
	"github.com/gophpeek/guardian/internal/compress"
	"github.com/gophpeek/guardian/internal/config"
	"github.com/gophpeek/guardian/internal/driver"
	"github.com/gophpeek/guardian/internal/health"
	"github.com/gophpeek/guardian/internal/metrics"
	"github.com/gophpeek/guardian/internal/notify"
	"github.com/gophpeek/guardian/internal/obslog"
	"github.com/gophpeek/guardian/internal/obstrace"
	"github.com/gophpeek/guardian/internal/recovery"
	"github.com/gophpeek/guardian/internal/registry"
	"github.com/gophpeek/guardian/internal/rotate"
	"github.com/gophpeek/guardian/internal/sleepguard"
	"github.com/gophpeek/guardian/internal/supervisor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the supervisor daemon (default command)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := obslog.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	startOrder, err := cfg.StartOrder()
	if err != nil {
		return fmt.Errorf("failed to compute start order: %w", err)
	}

	log.Info("guardian starting",
		"version", version,
		"pid", os.Getpid(),
		"processes", len(cfg.Processes),
		"start_order", startOrder,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	tracerCfg := obstrace.TracerConfig{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
		UseTLS:      cfg.Tracing.UseTLS,
	}
	provider, err := obstrace.NewProvider(ctx, tracerCfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	auditLogger := audit.NewLogger(log, true)
	auditLogger.LogSystemStart(version)
	auditLogger.LogConfigLoad(resolveConfigPath(), len(cfg.Processes))

	guard := sleepguard.Start(ctx, cfg.Macos.PreventSleep, log)
	defer guard.Stop()

	reg := registry.New(cfg.Processes)
	procDriver := driver.New(reg, log, auditLogger)
	checker := health.New()
	notifier := notify.New(cfg.Notifications, log)
	recoveryEngine := recovery.New(cfg.Recovery, procDriver, notifier, auditLogger)
	rotator := rotate.New(cfg.Processes, log)
	compressor := compress.New(cfg.Memory.Compression, cfg.Processes, log)

	metrics.SetBuildInfo(version, runtimeGoVersion())

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, log)
		metricsServer.SetStatusFunc(func() any { return reg.SnapshotAll() })
		metricsServer.SetControlFunc(func(action, process string) error {
			return dispatchControl(ctx, procDriver, cfg.Processes, action, process)
		})
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Stop(shutdownCtx)
		}()
	}

	if err := procDriver.StartAll(ctx, startOrder, cfg.Processes); err != nil {
		auditLogger.LogSystemError("driver", err.Error())
		return fmt.Errorf("failed to start processes: %w", err)
	}
	log.Info("all processes started")

	loop := supervisor.New(cfg.Advanced, cfg.Processes, startOrder, reg, checker, recoveryEngine,
		procDriver, auditLogger, log, compressor, rotator)
	loop.Run(ctx)

	return nil
}

// dispatchControl backs the /control HTTP endpoint used by `guardian
// start|stop|restart <name>`.
func dispatchControl(ctx context.Context, d *driver.Driver, specs map[string]*config.ProcessSpec, action, process string) error {
	if _, ok := specs[process]; !ok {
		return fmt.Errorf("unknown process %q", process)
	}
	switch action {
	case "start":
		return d.Start(ctx, process)
	case "stop":
		return d.Stop(ctx, process, defaultControlGrace)
	case "restart":
		return d.Restart(ctx, process, defaultControlGrace)
	default:
		return fmt.Errorf("unknown control action %q", action)
	}
}

const defaultControlGrace = 30 * time.Second

func runtimeGoVersion() string {
	return runtime.Version()
}
