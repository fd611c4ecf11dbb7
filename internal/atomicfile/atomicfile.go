// Package atomicfile provides crash-safe JSON file storage for a single
// directory: write-to-temp-then-rename, backup rotation on overwrite, and
// corrupt-file quarantine with backup recovery on read.
package atomicfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BackupSuffix is appended to the previous content of an overwritten file.
const BackupSuffix = ".bak"

// CorruptMarker separates a quarantined file's original name from the
// timestamp of the failed read.
const CorruptMarker = ".corrupt-"

// corruptStamp formats the quarantine timestamp as ISO-8601 with milliseconds.
const corruptStamp = "2006-01-02T15:04:05.000Z07:00"

// IsRecoveryArtifact reports whether name is a backup or quarantine file
// rather than a live entry.
func IsRecoveryArtifact(name string) bool {
	return strings.HasSuffix(name, BackupSuffix) || strings.Contains(name, CorruptMarker)
}

// Dir is a directory of JSON files written atomically. Writes are crash-safe
// per file; concurrent writes to different files may proceed in parallel.
// Dir holds no open handles, so Close is a no-op at the adapter level.
type Dir struct {
	path string
	log  zerolog.Logger
}

// NewDir creates a Dir rooted at path. The directory is not created until
// Ensure is called.
func NewDir(path string, log zerolog.Logger) *Dir {
	return &Dir{path: path, log: log}
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// Ensure creates the directory if it does not exist. Idempotent.
func (d *Dir) Ensure() error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", d.path, err)
	}
	return nil
}

// WriteJSON atomically replaces name with the pretty-printed JSON encoding
// of v. If the file already exists its current content is first copied to
// <name>.bak, so a torn write can always fall back to the previous state.
func (d *Dir) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	target := filepath.Join(d.path, name)

	if prev, err := os.ReadFile(target); err == nil {
		if err := os.WriteFile(target+BackupSuffix, prev, 0o644); err != nil {
			return fmt.Errorf("failed to write backup for %s: %w", name, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read existing %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(d.path, strings.TrimSuffix(name, ".json")+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	cleanup := true
	defer func() {
		if cleanup {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file for %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file for %s: %w", name, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", name, err)
	}
	cleanup = false
	return nil
}

// ReadJSON reads name into dest. The boolean reports whether a value was
// found. A file that fails to parse is quarantined as
// <name>.corrupt-<timestamp> and the backup is read instead; when the backup
// is missing or also unreadable the entry is treated as absent. Corruption
// is reported through the logger, never as an error.
func (d *Dir) ReadJSON(name string, dest any) (bool, error) {
	target := filepath.Join(d.path, name)

	data, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}

	if len(data) > 0 && json.Unmarshal(data, dest) == nil {
		return true, nil
	}

	// Corrupt main file: move it aside so the next write starts clean, then
	// try the backup.
	quarantine := target + CorruptMarker + time.Now().UTC().Format(corruptStamp)
	if err := os.Rename(target, quarantine); err != nil {
		d.log.Warn().Str("file", target).Err(err).Msg("failed to quarantine corrupt file")
	} else {
		d.log.Warn().Str("file", target).Str("quarantine", quarantine).Msg("quarantined corrupt file")
	}

	backup, err := os.ReadFile(target + BackupSuffix)
	if err != nil {
		if !os.IsNotExist(err) {
			d.log.Warn().Str("file", target).Err(err).Msg("failed to read backup")
		}
		d.log.Warn().Str("file", target).Msg("corrupt file has no recoverable backup")
		return false, nil
	}

	if err := json.Unmarshal(backup, dest); err != nil {
		d.log.Warn().Str("file", target).Err(err).Msg("backup is also corrupt")
		return false, nil
	}

	d.log.Info().Str("file", target).Msg("recovered content from backup")
	return true, nil
}

// List returns the names of the *.json entries in the directory. Backup and
// quarantine files never match. A missing directory lists as empty.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", d.path, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Delete removes name. Deleting a missing file is success.
func (d *Dir) Delete(name string) error {
	err := os.Remove(filepath.Join(d.path, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}
