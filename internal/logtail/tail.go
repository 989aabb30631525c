// Package logtail implements `guardian logs`'s file tailing, following a
// process's configured log file by watching for writes rather than
// polling, in the shape of the teacher's internal/watcher config watcher.
package logtail

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/gophpeek/guardian/internal/guardianerr"
)

// LastLines returns up to n trailing lines of the file at path.
func LastLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", path, guardianerr.ErrProbeIO, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, scanner.Err()
}

// Follow watches path for writes and invokes onLine for every complete line
// appended after the call, until ctx is cancelled.
func Follow(ctx context.Context, path string, onLine func(string), logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w: %w", path, guardianerr.ErrProbeIO, err)
	}
	defer f.Close()
	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		return fmt.Errorf("seek %s: %w: %w", path, guardianerr.ErrProbeIO, err)
	}

	reader := bufio.NewReader(f)
	drain := func() {
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				onLine(trimNewline(line))
			}
			if err != nil {
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) {
				drain()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Warn("log watcher error", "path", path, "error", err)
			}
		}
	}
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}
