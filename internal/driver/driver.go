// Package driver spawns and terminates managed child processes and
// implements the three readiness gates (time, log pattern, tcp port).
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/gophpeek/guardian/internal/audit"
	"github.com/gophpeek/guardian/internal/config"
	"github.com/gophpeek/guardian/internal/guardianerr"
	"github.com/gophpeek/guardian/internal/metrics"
	"github.com/gophpeek/guardian/internal/obstrace"
	"github.com/gophpeek/guardian/internal/registry"
)

// Driver spawns, waits on, and terminates the children of managed
// processes. One handle is kept per process name; the registry holds
// everything else.
type Driver struct {
	reg    *registry.Registry
	logger *slog.Logger
	audit  *audit.Logger

	mu       sync.Mutex
	handles  map[string]*handle
}

type handle struct {
	cmd    *exec.Cmd
	doneCh chan struct{}
	exitCode int
}

// New builds a Driver bound to reg.
func New(reg *registry.Registry, logger *slog.Logger, auditLogger *audit.Logger) *Driver {
	return &Driver{
		reg:     reg,
		logger:  logger,
		audit:   auditLogger,
		handles: make(map[string]*handle),
	}
}

// Start spawns the named process's child and transitions it to Running.
func (d *Driver) Start(ctx context.Context, name string) error {
	ctx, span := obstrace.StartDriverSpan(ctx, name, "start")
	defer span.End()

	snap, err := d.reg.Snapshot(name)
	if err != nil {
		obstrace.RecordError(span, err, "unknown process")
		return err
	}
	spec := snap.Spec

	if err := d.reg.Mutate(name, func(rec *registry.Record) { rec.SetState(registry.Starting) }); err != nil {
		return err
	}

	workDir := spec.WorkingDir
	if workDir != "" {
		if _, statErr := os.Stat(workDir); statErr != nil {
			workDir = ""
		}
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	cmd.Env = mergedEnv(spec.Env)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		obstrace.RecordError(span, err, "spawn failed")
		_ = d.reg.Mutate(name, func(rec *registry.Record) { rec.SetState(registry.Failed) })
		d.logger.Error("process spawn failed", "process", name, "error", err)
		return fmt.Errorf("spawn %s: %w: %w", name, guardianerr.ErrSpawnFailed, err)
	}

	h := &handle{cmd: cmd, doneCh: make(chan struct{})}
	d.mu.Lock()
	d.handles[name] = h
	d.mu.Unlock()

	startedAt := time.Now()
	pid := cmd.Process.Pid
	if err := d.reg.Mutate(name, func(rec *registry.Record) {
		rec.SetPID(pid)
		rec.SetStartedAt(startedAt)
		rec.SetState(registry.Running)
	}); err != nil {
		return err
	}

	d.logger.Info("process started", "process", name, "pid", pid)
	d.audit.LogProcessStart(name, pid)
	metrics.RecordProcessStart(name, float64(startedAt.Unix()))

	go d.monitor(name, h)

	obstrace.RecordSuccess(span)
	return nil
}

func (d *Driver) monitor(name string, h *handle) {
	err := h.cmd.Wait()
	exitCode := 0
	if h.cmd.ProcessState != nil {
		exitCode = h.cmd.ProcessState.ExitCode()
	}
	h.exitCode = exitCode
	close(h.doneCh)

	snap, snapErr := d.reg.Snapshot(name)
	if snapErr != nil {
		return
	}
	if snap.State == registry.Stopping || snap.State == registry.Stopped {
		return
	}
	pid := snap.PID

	_ = d.reg.Mutate(name, func(rec *registry.Record) {
		rec.ClearPID()
		rec.SetLastExitCode(exitCode)
		rec.SetState(registry.Failed)
	})

	if err != nil {
		d.logger.Error("process exited unexpectedly", "process", name, "exit_code", exitCode, "error", err)
	} else {
		d.logger.Warn("process exited unexpectedly", "process", name, "exit_code", exitCode)
	}
	d.audit.LogProcessCrash(name, pid, exitCode)
	metrics.RecordProcessStop(name, exitCode)
}

func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// WaitForReady blocks until spec's ReadySpec is satisfied, or until its
// timeout elapses. LogPattern reads the process's configured health log file.
func (d *Driver) WaitForReady(ctx context.Context, name string, spec *config.ProcessSpec) error {
	ready := spec.ReadySpec
	ctx, span := obstrace.StartDriverSpan(ctx, name, "wait_for_ready")
	defer span.End()

	switch ready.Kind {
	case config.ReadyTime:
		wait := ready.Secs
		if wait > 10*time.Second {
			wait = 10 * time.Second
		}
		time.Sleep(wait)
		obstrace.RecordSuccess(span)
		return nil

	case config.ReadyLogPattern:
		logPath := ""
		if spec.Health != nil {
			logPath = spec.Health.LogFile
		}
		if err := waitForLogPattern(ctx, name, ready, logPath); err != nil {
			obstrace.AddEvent(span, "log_pattern timeout, best-effort pass")
		}
		obstrace.RecordSuccess(span)
		return nil

	case config.ReadyTCPPort:
		if err := waitForTCPPort(ctx, ready); err != nil {
			obstrace.RecordError(span, err, "tcp port never opened")
			return err
		}
		obstrace.RecordSuccess(span)
		return nil

	default:
		obstrace.RecordSuccess(span)
		return nil
	}
}

func waitForLogPattern(ctx context.Context, name string, ready config.ReadySpec, logPath string) error {
	if logPath == "" {
		return fmt.Errorf("no log file configured for %s", name)
	}
	re, err := regexp.Compile(ready.Regex)
	if err != nil {
		return fmt.Errorf("invalid log_pattern regex for %s: %w", name, err)
	}

	deadline := time.Now().Add(ready.Timeout)

	for {
		if _, statErr := os.Stat(logPath); statErr == nil {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for log file")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	for time.Now().Before(deadline) {
		data, readErr := os.ReadFile(logPath)
		if readErr == nil && re.Match(data) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("timeout waiting for log pattern")
}

func waitForTCPPort(ctx context.Context, ready config.ReadySpec) error {
	deadline := time.Now().Add(ready.Timeout)
	addr := fmt.Sprintf("127.0.0.1:%d", ready.Port)
	for {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for tcp port %d", ready.Port)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Stop requests a graceful shutdown of the named process, escalating to a
// force-kill after grace elapses. Stopping an already-Stopped process is a
// no-op.
func (d *Driver) Stop(ctx context.Context, name string, grace time.Duration) error {
	ctx, span := obstrace.StartDriverSpan(ctx, name, "stop")
	defer span.End()

	snap, err := d.reg.Snapshot(name)
	if err != nil {
		obstrace.RecordError(span, err, "unknown process")
		return err
	}
	if snap.State == registry.Stopped {
		obstrace.RecordSuccess(span)
		return nil
	}

	d.mu.Lock()
	h, ok := d.handles[name]
	d.mu.Unlock()

	_ = d.reg.Mutate(name, func(rec *registry.Record) { rec.SetState(registry.Stopping) })

	if !ok || h.cmd.Process == nil {
		_ = d.reg.Mutate(name, func(rec *registry.Record) {
			rec.ClearPID()
			rec.SetState(registry.Stopped)
		})
		obstrace.RecordSuccess(span)
		return nil
	}

	pid := h.cmd.Process.Pid
	if pgid, pgErr := syscall.Getpgid(pid); pgErr == nil {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		_ = h.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-h.doneCh:
		d.logger.Info("process stopped gracefully", "process", name, "pid", pid)
	case <-time.After(grace):
		d.logger.Warn("process did not stop gracefully, force killing", "process", name, "pid", pid, "error", guardianerr.ErrStopTimeout)
		if pgid, pgErr := syscall.Getpgid(pid); pgErr == nil {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		} else {
			_ = h.cmd.Process.Kill()
		}
		<-h.doneCh
	}

	exitCode := h.exitCode
	if err := d.reg.Mutate(name, func(rec *registry.Record) {
		rec.ClearPID()
		rec.SetLastExitCode(exitCode)
		rec.SetState(registry.Stopped)
	}); err != nil {
		return err
	}

	d.audit.LogProcessStop(name, pid, exitCode)
	metrics.RecordProcessStop(name, exitCode)
	obstrace.RecordSuccess(span)
	return nil
}

// Restart stops, records the restart, sleeps restart_delay, then starts.
func (d *Driver) Restart(ctx context.Context, name string, grace time.Duration) error {
	snap, err := d.reg.Snapshot(name)
	if err != nil {
		return err
	}

	if err := d.Stop(ctx, name, grace); err != nil {
		return err
	}

	now := time.Now()
	if err := d.reg.Mutate(name, func(rec *registry.Record) { rec.RecordRestart(now) }); err != nil {
		return err
	}
	count, _ := restartCountOf(d.reg, name)
	d.audit.LogProcessRestart(name, count, "recovery")
	metrics.RecordRestart(name, "recovery")

	delay := time.Duration(snap.Spec.RestartDelay) * time.Second
	if delay > 0 {
		time.Sleep(delay)
	}

	return d.Start(ctx, name)
}

func restartCountOf(reg *registry.Registry, name string) (int, error) {
	snap, err := reg.Snapshot(name)
	if err != nil {
		return 0, err
	}
	return snap.RestartCount, nil
}

// StartAll walks order, calling Start then WaitForReady on each, stopping at
// the first error.
func (d *Driver) StartAll(ctx context.Context, order []string, specs map[string]*config.ProcessSpec) error {
	for _, name := range order {
		if err := d.Start(ctx, name); err != nil {
			return err
		}
		spec := specs[name]
		if err := d.WaitForReady(ctx, name, spec); err != nil {
			return fmt.Errorf("process %s never became ready: %w", name, err)
		}
	}
	return nil
}

// StopAll walks order (expected to already be the reverse start order),
// calling Stop on each and continuing past errors.
func (d *Driver) StopAll(ctx context.Context, order []string, grace time.Duration) {
	for _, name := range order {
		if err := d.Stop(ctx, name, grace); err != nil {
			d.logger.Error("stop failed during shutdown sweep", "process", name, "error", err)
		}
	}
}
