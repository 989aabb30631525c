package sleepguard

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStartDisabledIsNoop(t *testing.T) {
	g := Start(context.Background(), false, testLogger())
	if g.cmd != nil {
		t.Error("expected no caffeinate process when disabled")
	}
	g.Stop() // must not panic
}

func TestStartOnNonDarwinIsNoop(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("this assertion only holds on non-darwin platforms")
	}
	g := Start(context.Background(), true, testLogger())
	if g.cmd != nil {
		t.Error("expected no caffeinate process outside darwin")
	}
	g.Stop()
}

func TestStopOnNeverStartedGuardIsSafe(t *testing.T) {
	g := &Guard{logger: testLogger()}
	g.Stop()
}
