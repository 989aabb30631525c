// Package backup maintains generational snapshots of a single watched file,
// used by the health checker's config-validation probe and by the
// recovery engine's restore_backup action.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gophpeek/guardian/internal/guardianerr"
)

// MaxGenerations is the maximum number of ".backup.N" siblings kept per
// watched file; ".1" is always the newest.
const MaxGenerations = 5

// ErrNotFound is returned when the watched file (create) or any backup
// generation (restore_latest) is missing.
var ErrNotFound = guardianerr.ErrBackupMissing

func backupPath(path string, generation int) string {
	return fmt.Sprintf("%s.backup.%d", path, generation)
}

// Create rotates the existing generations up by one (dropping what would
// become generation 6) and copies path into the new ".backup.1".
func Create(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}

	for i := MaxGenerations - 1; i >= 1; i-- {
		src := backupPath(path, i)
		dst := backupPath(path, i+1)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("rotate backup %s -> %s: %w", src, dst, err)
		}
	}

	return copyFile(path, backupPath(path, 1))
}

// RestoreLatest copies the lowest-numbered existing backup generation onto
// path. Falls back to the legacy "path.backup" name. Fails ErrNotFound if
// neither exists.
func RestoreLatest(path string) error {
	for i := 1; i <= MaxGenerations; i++ {
		src := backupPath(path, i)
		if _, err := os.Stat(src); err == nil {
			return copyFile(src, path)
		}
	}

	legacy := path + ".backup"
	if _, err := os.Stat(legacy); err == nil {
		return copyFile(legacy, path)
	}

	return ErrNotFound
}

// RestoreDefault copies the pristine "path.default" template onto path. Used
// by the recovery engine's restore_backup action when no generation exists
// to restore from.
func RestoreDefault(path string) error {
	def := path + ".default"
	if _, err := os.Stat(def); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return copyFile(def, path)
}

// List returns the existing backup paths for path, in order 1..5.
func List(path string) []string {
	var out []string
	for i := 1; i <= MaxGenerations; i++ {
		candidate := backupPath(path, i)
		if _, err := os.Stat(candidate); err == nil {
			out = append(out, candidate)
		}
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), ".backup-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := out.Name()
	defer func() {
		out.Close()
		os.Remove(tmpPath)
	}()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, dst)
}
