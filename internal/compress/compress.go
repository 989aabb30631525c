// Package compress shells out to an external compressor (zstd by default)
// once per supervisor tick and reports the resulting compression ratio,
// mirroring the Rust original's tokio::process::Command-driven compressor.
package compress

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/gophpeek/guardian/internal/config"
	"github.com/gophpeek/guardian/internal/guardianerr"
)

const minAgeBeforeCompress = time.Hour

// Compressor invokes the configured external compressor against rotated
// log archives (produced by internal/rotate) that are old enough to be
// safely compacted further.
type Compressor struct {
	cfg    config.CompressionConfig
	specs  map[string]*config.ProcessSpec
	logger *slog.Logger
	runner func(ctx context.Context, name string, args ...string) error
}

// New builds a Compressor bound to the global compression config and the
// set of managed processes whose log directories may hold archives.
func New(cfg config.CompressionConfig, specs map[string]*config.ProcessSpec, logger *slog.Logger) *Compressor {
	return &Compressor{cfg: cfg, specs: specs, logger: logger, runner: runExternal}
}

// CheckAndCompress is a no-op unless compression is enabled and a command is
// configured; otherwise it walks every process's log directory for archives
// old enough to compact, shells the compressor out on each, and logs the
// before/after size ratio achieved.
func (c *Compressor) CheckAndCompress(ctx context.Context) error {
	if !c.cfg.Enabled || c.cfg.Command == "" {
		return nil
	}

	var firstErr error
	for name, spec := range c.specs {
		if spec.Health == nil || spec.Health.LogFile == "" {
			continue
		}
		if err := c.compressDir(ctx, name, filepath.Dir(spec.Health.LogFile)); err != nil {
			c.logger.Warn("compression failed", "process", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("%w: %w", guardianerr.ErrCollaborator, firstErr)
	}
	return nil
}

func (c *Compressor) compressDir(ctx context.Context, processName, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".gz" {
			continue
		}
		info, err := entry.Info()
		if err != nil || time.Since(info.ModTime()) < minAgeBeforeCompress {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		before := info.Size()

		args := append(append([]string{}, c.cfg.Args...), path)
		if err := c.runner(ctx, c.cfg.Command, args...); err != nil {
			return fmt.Errorf("compress %s: %w", path, err)
		}

		after, statErr := os.Stat(outputPath(path, c.cfg.Command))
		ratio := 0.0
		if statErr == nil && before > 0 {
			ratio = float64(after.Size()) / float64(before)
		}
		c.logger.Info("compressed archive", "process", processName, "path", path,
			"before_bytes", before, "ratio", ratio)
	}
	return nil
}

// outputPath guesses the output file a compressor produces: zstd and xz
// append their own extension to the input path; for any other command the
// input path itself is returned.
func outputPath(input, command string) string {
	switch filepath.Base(command) {
	case "zstd":
		return input + ".zst"
	case "xz":
		return input + ".xz"
	default:
		return input
	}
}

func runExternal(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Run()
}
