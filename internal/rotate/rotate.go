// Package rotate gzip-rotates process log files once they cross a size
// threshold, checked on an hourly cadence by the supervisor loop.
package rotate

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gophpeek/guardian/internal/config"
	"github.com/gophpeek/guardian/internal/guardianerr"
)

const defaultMaxSizeBytes = 100 * 1024 * 1024 // 100MB

// Rotator rotates the log_file of every process that declares one.
type Rotator struct {
	specs       map[string]*config.ProcessSpec
	logger      *slog.Logger
	maxSize     int64
	lastChecked time.Time
}

// New builds a Rotator over the configured processes' health log files.
func New(specs map[string]*config.ProcessSpec, logger *slog.Logger) *Rotator {
	return &Rotator{specs: specs, logger: logger, maxSize: defaultMaxSizeBytes}
}

// ShouldCheck reports whether intervalSecs has elapsed since the last check.
func (r *Rotator) ShouldCheck(intervalSecs int) bool {
	if r.lastChecked.IsZero() {
		return true
	}
	return time.Since(r.lastChecked) >= time.Duration(intervalSecs)*time.Second
}

// RotateIfNeeded compresses and truncates any log file over maxSize.
func (r *Rotator) RotateIfNeeded(ctx context.Context) error {
	r.lastChecked = time.Now()

	var firstErr error
	for name, spec := range r.specs {
		if spec.Health == nil || spec.Health.LogFile == "" {
			continue
		}
		if err := r.rotateOne(spec.Health.LogFile); err != nil {
			r.logger.Warn("log rotation failed", "process", name, "error", err)
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

func (r *Rotator) rotateOne(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() < r.maxSize {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	compressed, err := gzipBytes(data)
	if err != nil {
		return fmt.Errorf("compress %s: %w", path, err)
	}

	archivePath := fmt.Sprintf("%s.%s.gz", path, time.Now().Format("20060102T150405"))
	if err := os.WriteFile(archivePath, compressed, 0o644); err != nil {
		return fmt.Errorf("write archive %s: %w", archivePath, err)
	}

	if err := os.Truncate(path, 0); err != nil {
		return fmt.Errorf("truncate %s: %w", path, err)
	}

	r.logger.Info("rotated log file", "path", path, "archive", archivePath, "size_bytes", info.Size())
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decompress is used by tests to verify a rotated archive round-trips.
func decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
