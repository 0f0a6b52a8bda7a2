package etl

import (
	"fmt"
	"os"
	"path/filepath"

	"ftmgraph/internal/cypher"
	"ftmgraph/internal/domain"
	"ftmgraph/internal/export"
	"ftmgraph/internal/graph"
)

// ── Graph destination ──────────────────────────────────────
// Projects entities and hands the records to the label file
// registry. The load script is only produced by finish, after
// every file has been closed.

type graphWriter struct {
	projector *graph.Projector
	registry  *export.Registry
}

func (w *graphWriter) write(e *domain.Entity) error {
	p, err := w.projector.Project(e)
	if err != nil {
		return fmt.Errorf("project %s: %w", e.ID, err)
	}
	return w.registry.Emit(p)
}

// finish closes every label file and renders the load script.
func (w *graphWriter) finish(opts cypher.Options) (*cypher.Script, error) {
	if err := w.registry.Close(); err != nil {
		return nil, err
	}
	files, err := w.registry.Files()
	if err != nil {
		return nil, err
	}
	return cypher.Generate(files, opts)
}

// abort closes the label files without producing a script.
func (w *graphWriter) abort() error {
	return w.registry.Close()
}

// writeScript writes the script next to a temporary name and renames
// it into place so a partial script is never observable.
func writeScript(path string, s *cypher.Script) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".load-*.cypher")
	if err != nil {
		return fmt.Errorf("create script: %w", err)
	}
	if _, err := s.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write script: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod script: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close script: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename script: %w", err)
	}
	return nil
}
