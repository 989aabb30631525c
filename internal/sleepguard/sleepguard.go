// Package sleepguard prevents macOS from idle-sleeping while Guardian
// supervises processes, by shelling out to caffeinate. It is a no-op on
// every other platform.
package sleepguard

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
)

// Guard holds the running caffeinate child, if any.
type Guard struct {
	cmd    *exec.Cmd
	logger *slog.Logger
}

// Start launches caffeinate -dimsu on darwin when enabled; elsewhere it is a
// no-op. The returned Guard's Stop is always safe to call.
func Start(ctx context.Context, enabled bool, logger *slog.Logger) *Guard {
	g := &Guard{logger: logger}
	if !enabled || runtime.GOOS != "darwin" {
		return g
	}

	cmd := exec.CommandContext(ctx, "caffeinate", "-dimsu")
	if err := cmd.Start(); err != nil {
		logger.Warn("failed to start caffeinate, sleep prevention disabled", "error", err)
		return g
	}
	g.cmd = cmd
	logger.Info("sleep prevention active", "pid", cmd.Process.Pid)
	return g
}

// Stop terminates the caffeinate child, if one was started.
func (g *Guard) Stop() {
	if g.cmd == nil || g.cmd.Process == nil {
		return
	}
	if err := g.cmd.Process.Kill(); err != nil {
		g.logger.Warn("failed to stop caffeinate", "error", err)
	}
	_ = g.cmd.Wait()
}
