// Package supervisor runs the fixed-tick loop that ties the registry,
// health checker, recovery engine, and process driver together.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/gophpeek/guardian/internal/audit"
	"github.com/gophpeek/guardian/internal/config"
	"github.com/gophpeek/guardian/internal/health"
	"github.com/gophpeek/guardian/internal/metrics"
	"github.com/gophpeek/guardian/internal/obstrace"
	"github.com/gophpeek/guardian/internal/recovery"
	"github.com/gophpeek/guardian/internal/registry"
)

// Compressor is invoked once per tick; see internal/compress.
type Compressor interface {
	CheckAndCompress(ctx context.Context) error
}

// Rotator is invoked roughly hourly; see internal/rotate.
type Rotator interface {
	RotateIfNeeded(ctx context.Context) error
	ShouldCheck(intervalSecs int) bool
}

// Loop is the supervisor's fixed-tick scheduler.
type Loop struct {
	cfg        config.AdvancedConfig
	specs      map[string]*config.ProcessSpec
	startOrder []string
	stopOrder  []string

	reg      *registry.Registry
	checker  *health.Checker
	recovery *recovery.Engine
	driver   recovery.Starter
	audit    *audit.Logger
	logger   *slog.Logger

	compressor Compressor
	rotator    Rotator

	lastRotateCheck time.Time
}

// New builds a Loop. startOrder must be a valid topological order over specs.
func New(
	cfg config.AdvancedConfig,
	specs map[string]*config.ProcessSpec,
	startOrder []string,
	reg *registry.Registry,
	checker *health.Checker,
	recoveryEngine *recovery.Engine,
	driver recovery.Starter,
	auditLogger *audit.Logger,
	logger *slog.Logger,
	compressor Compressor,
	rotator Rotator,
) *Loop {
	stopOrder := make([]string, len(startOrder))
	for i, name := range startOrder {
		stopOrder[len(startOrder)-1-i] = name
	}
	return &Loop{
		cfg:        cfg,
		specs:      specs,
		startOrder: startOrder,
		stopOrder:  stopOrder,
		reg:        reg,
		checker:    checker,
		recovery:   recoveryEngine,
		driver:     driver,
		audit:      auditLogger,
		logger:     logger,
		compressor: compressor,
		rotator:    rotator,
	}
}

// Run executes ticks at cfg.SupervisorInterval until ctx is cancelled, then
// performs a graceful reverse-order shutdown.
func (l *Loop) Run(ctx context.Context) {
	interval := time.Duration(l.cfg.SupervisorInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Info("supervisor loop started", "interval", interval)

	for {
		select {
		case <-ticker.C:
			l.tick(ctx)
		case <-ctx.Done():
			l.shutdown()
			return
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	ctx, span := obstrace.StartSupervisorTickSpan(ctx)
	defer span.End()

	start := time.Now()
	defer func() { metrics.SupervisorTickDuration.Observe(time.Since(start).Seconds()) }()

	for _, name := range l.startOrder {
		l.evaluateOne(ctx, name)
	}

	if l.compressor != nil {
		if err := l.compressor.CheckAndCompress(ctx); err != nil {
			l.logger.Warn("compression collaborator failed", "error", err)
		}
	}

	if l.rotator != nil && l.rotator.ShouldCheck(3600) {
		if err := l.rotator.RotateIfNeeded(ctx); err != nil {
			l.logger.Warn("rotation collaborator failed", "error", err)
		}
		l.lastRotateCheck = time.Now()
	}

	obstrace.RecordSuccess(span)
}

func (l *Loop) evaluateOne(ctx context.Context, name string) {
	snap, err := l.reg.Snapshot(name)
	if err != nil {
		return
	}
	spec := l.specs[name]

	switch {
	case snap.State == registry.Failed && spec.AutoRestart:
		verdict := health.Verdict{
			ProcessName: name, Status: health.StatusUnhealthy,
			LevelResults: []health.LevelResult{{Level: 1, Name: "process_alive", Passed: false, Message: "process crashed"}},
			CheckedAt:    time.Now(),
		}
		l.invokeRecovery(ctx, name, verdict, snap.RestartCount)

	case snap.State == registry.Running:
		verdict := l.checker.Evaluate(ctx, name, snap.PID, snap.HasPID, spec.Health)
		if verdict.Status == health.StatusHealthy {
			l.recovery.ClearBackoff(name)
			return
		}
		l.audit.LogHealthCheckFailed(name, verdict.Status.String(), verdict.Message)
		l.invokeRecovery(ctx, name, verdict, snap.RestartCount)
	}
}

func (l *Loop) invokeRecovery(ctx context.Context, name string, verdict health.Verdict, restartCount int) {
	action := l.recovery.Evaluate(verdict, restartCount)
	if err := l.recovery.Execute(ctx, name, action, l.startOrder, l.specs); err != nil {
		l.logger.Error("recovery action failed", "process", name, "error", err)
	}
}

func (l *Loop) shutdown() {
	l.logger.Info("supervisor loop stopping, shutting down processes")
	start := time.Now()
	grace := time.Duration(l.cfg.ShutdownGracePeriod) * time.Second
	if grace <= 0 {
		grace = 60 * time.Second
	}
	l.driver.StopAll(context.Background(), l.stopOrder, grace)
	metrics.RecordShutdownDuration(time.Since(start).Seconds())
	l.audit.LogSystemShutdown(true)
	l.logger.Info("supervisor loop stopped",
		"total_recoveries", l.recovery.Stats().TotalRecoveries,
		"successful", l.recovery.Stats().Successful,
		"failed", l.recovery.Stats().Failed,
	)
}
