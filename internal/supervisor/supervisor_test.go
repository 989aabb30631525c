package supervisor

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/gophpeek/guardian/internal/audit"
	"github.com/gophpeek/guardian/internal/config"
	"github.com/gophpeek/guardian/internal/health"
	"github.com/gophpeek/guardian/internal/recovery"
	"github.com/gophpeek/guardian/internal/registry"
)

type fakeDriver struct {
	restarts []string
	stopped  []string
}

func (f *fakeDriver) Restart(ctx context.Context, name string, grace time.Duration) error {
	f.restarts = append(f.restarts, name)
	return nil
}
func (f *fakeDriver) Start(ctx context.Context, name string) error { return nil }
func (f *fakeDriver) StartAll(ctx context.Context, order []string, specs map[string]*config.ProcessSpec) error {
	return nil
}
func (f *fakeDriver) StopAll(ctx context.Context, order []string, grace time.Duration) {
	f.stopped = append(f.stopped, order...)
}

type fakeCompressor struct{ calls int }

func (f *fakeCompressor) CheckAndCompress(ctx context.Context) error {
	f.calls++
	return nil
}

type fakeRotator struct {
	calls     int
	shouldRun bool
}

func (f *fakeRotator) RotateIfNeeded(ctx context.Context) error {
	f.calls++
	return nil
}
func (f *fakeRotator) ShouldCheck(intervalSecs int) bool { return f.shouldRun }

func testLoop(t *testing.T, specs map[string]*config.ProcessSpec, order []string) (*Loop, *registry.Registry, *fakeDriver) {
	t.Helper()
	reg := registry.New(specs)
	checker := health.New()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	auditLogger := audit.NewLogger(logger, false)
	driver := &fakeDriver{}
	engine := recovery.New(config.RecoveryConfig{MaxRestarts: 5}, driver, nil, auditLogger)
	cfg := config.AdvancedConfig{SupervisorInterval: 1, ShutdownGracePeriod: 1}
	loop := New(cfg, specs, order, reg, checker, engine, driver, auditLogger, logger, &fakeCompressor{}, &fakeRotator{})
	return loop, reg, driver
}

func TestEvaluateOneRestartsFailedAutoRestartProcess(t *testing.T) {
	specs := map[string]*config.ProcessSpec{"web": {Name: "web", AutoRestart: true}}
	loop, reg, driver := testLoop(t, specs, []string{"web"})

	_ = reg.Mutate("web", func(rec *registry.Record) {
		rec.SetState(registry.Failed)
	})

	loop.evaluateOne(context.Background(), "web")
	if len(driver.restarts) != 1 {
		t.Errorf("expected one restart for a failed auto_restart process, got %d", len(driver.restarts))
	}
}

func TestEvaluateOneSkipsFailedWithoutAutoRestart(t *testing.T) {
	specs := map[string]*config.ProcessSpec{"web": {Name: "web", AutoRestart: false}}
	loop, reg, driver := testLoop(t, specs, []string{"web"})

	_ = reg.Mutate("web", func(rec *registry.Record) {
		rec.SetState(registry.Failed)
	})

	loop.evaluateOne(context.Background(), "web")
	if len(driver.restarts) != 0 {
		t.Errorf("expected no restart without auto_restart, got %d", len(driver.restarts))
	}
}

func TestEvaluateOneHealthyRunningProcessTakesNoAction(t *testing.T) {
	specs := map[string]*config.ProcessSpec{"web": {Name: "web", Health: &config.HealthSpec{}}}
	loop, reg, driver := testLoop(t, specs, []string{"web"})

	pid := os.Getpid()
	_ = reg.Mutate("web", func(rec *registry.Record) {
		rec.SetPID(pid)
		rec.SetState(registry.Running)
	})

	loop.evaluateOne(context.Background(), "web")
	if len(driver.restarts) != 0 {
		t.Errorf("expected no recovery action for a healthy process, got %d restarts", len(driver.restarts))
	}
}

func TestEvaluateOneUnhealthyRunningProcessTriggersRecovery(t *testing.T) {
	specs := map[string]*config.ProcessSpec{"web": {Name: "web", Health: &config.HealthSpec{}}}
	loop, reg, driver := testLoop(t, specs, []string{"web"})

	_ = reg.Mutate("web", func(rec *registry.Record) {
		rec.SetPID(0)
		rec.SetState(registry.Running)
	})

	loop.evaluateOne(context.Background(), "web")
	if len(driver.restarts) != 1 {
		t.Errorf("expected recovery to restart an unhealthy process, got %d", len(driver.restarts))
	}
}

func TestTickCallsCompressorEveryTimeAndRotatorWhenDue(t *testing.T) {
	specs := map[string]*config.ProcessSpec{"web": {Name: "web"}}
	loop, _, _ := testLoop(t, specs, []string{"web"})

	compressor := &fakeCompressor{}
	rotator := &fakeRotator{shouldRun: true}
	loop.compressor = compressor
	loop.rotator = rotator

	loop.tick(context.Background())
	if compressor.calls != 1 {
		t.Errorf("expected compressor to be called once per tick, got %d", compressor.calls)
	}
	if rotator.calls != 1 {
		t.Errorf("expected rotator to run when ShouldCheck is true, got %d", rotator.calls)
	}
}

func TestShutdownStopsInReverseStartOrder(t *testing.T) {
	specs := map[string]*config.ProcessSpec{
		"web":    {Name: "web"},
		"worker": {Name: "worker"},
	}
	loop, _, driver := testLoop(t, specs, []string{"web", "worker"})

	loop.shutdown()

	if len(driver.stopped) != 2 || driver.stopped[0] != "worker" || driver.stopped[1] != "web" {
		t.Errorf("expected shutdown to stop in reverse start order, got %v", driver.stopped)
	}
}
