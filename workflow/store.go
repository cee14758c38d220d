package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Directory constants for the .foreman structure.
const (
	RootDir    = ".foreman"
	PlanFile   = "plan.json"
	ArchiveDir = "archive"
)

// labelSanitizer keeps only alphanumerics, underscore, and hyphen in
// archive labels.
var labelSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Store persists plans as one JSON document per project directory.
// Saves are atomic: a crash mid-write never corrupts the previous valid plan.
type Store struct {
	logger *slog.Logger
}

// NewStore creates a plan store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// PlanPath returns the canonical plan file path for a project.
func PlanPath(projectPath string) string {
	return filepath.Join(projectPath, RootDir, PlanFile)
}

// ArchivePath returns the archive directory path for a project.
func ArchivePath(projectPath string) string {
	return filepath.Join(projectPath, RootDir, ArchiveDir)
}

// Load reads the plan for a project. A missing or empty file yields
// (nil, nil); a corrupt file is logged and also yields (nil, nil) so a bad
// plan on disk never takes down the caller.
func (s *Store) Load(projectPath string) (*Plan, error) {
	path := PlanPath(projectPath)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		s.logger.Warn("Plan file is corrupt, treating as absent",
			"path", path,
			"error", err)
		return nil, nil
	}

	return &plan, nil
}

// Save writes the plan atomically: serialize to a temporary file in the same
// directory, then rename over the canonical path. Refreshes updated_at and
// backfills created_at.
func (s *Store) Save(projectPath string, plan *Plan) error {
	path := PlanPath(projectPath)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create plan directory: %w", err)
	}

	now := time.Now().UTC()
	plan.UpdatedAt = now
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	tmp, err := os.CreateTemp(dir, PlanFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp plan file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp plan file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp plan file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp plan file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename plan file: %w", err)
	}

	return nil
}

// Archive moves the canonical plan file into the archive directory under a
// name encoding a UTC timestamp and a sanitized status label. No-op when no
// plan file exists.
func (s *Store) Archive(projectPath, statusLabel string) error {
	path := PlanPath(projectPath)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat plan file: %w", err)
	}

	archiveDir := ArchivePath(projectPath)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	label := SanitizeLabel(statusLabel)
	name := fmt.Sprintf("%s_%s.json", time.Now().UTC().Format("20060102T150405Z"), label)
	dest := filepath.Join(archiveDir, name)

	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("archive plan file: %w", err)
	}

	s.logger.Info("Archived plan",
		"project", projectPath,
		"archive", dest,
		"label", label)
	return nil
}

// Delete removes the canonical plan file if present. Calling it when no file
// exists is not an error.
func (s *Store) Delete(projectPath string) error {
	err := os.Remove(PlanPath(projectPath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete plan file: %w", err)
	}
	return nil
}

// SanitizeLabel reduces a status label to alphanumerics, underscore, and
// hyphen. Empty or fully invalid labels fall back to "unknown".
func SanitizeLabel(label string) string {
	clean := labelSanitizer.ReplaceAllString(label, "")
	if clean == "" {
		return "unknown"
	}
	return clean
}
