package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"site-orchestrator/internal/runlog"
)

// Local writes run records to a directory, for deployments without object
// storage.
type Local struct {
	baseDir string
}

// NewLocal builds a directory-backed archiver.
func NewLocal(baseDir string) *Local {
	return &Local{baseDir: baseDir}
}

// ArchiveRun implements runlog.Archiver.
func (a *Local) ArchiveRun(_ context.Context, rec *runlog.Record) error {
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	path := filepath.Join(a.baseDir, filepath.FromSlash(objectKey(rec)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write run %s: %w", path, err)
	}
	return nil
}
