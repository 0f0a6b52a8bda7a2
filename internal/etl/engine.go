package etl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"ftmgraph/internal/cypher"
	"ftmgraph/internal/domain"
	"ftmgraph/internal/export"
	"ftmgraph/internal/graph"
	"ftmgraph/internal/logger"
)

// ── Engine ─────────────────────────────────────────────────
// The Engine runs export jobs: one registry per run, entities
// processed one at a time in stream order.

// DiskKeysOpener opens disk-backed key sets under dir. The returned
// func releases them.
type DiskKeysOpener func(dir string) (export.KeySetFactory, func() error, error)

// Engine runs export jobs against the registered sources.
type Engine struct {
	Model *domain.Model
	Log   *logger.Logger
	// DiskKeys backs the "sqlite" key store option.
	DiskKeys      DiskKeysOpener
	ProgressEvery int
}

func (e *Engine) log() *logger.Logger {
	if e.Log == nil {
		return logger.Nop()
	}
	return e.Log
}

// RunExport executes an export job end-to-end. On any failure or
// cancellation the label files written so far are closed and no load
// script exists in the output directory afterwards.
func (e *Engine) RunExport(ctx context.Context, job *ExportJob) (*ExportResult, error) {
	start := time.Now()
	result := &ExportResult{JobID: job.ID, Labels: map[string]int{}}
	log := e.log().With("job", job.ID, "source", job.SourceType)

	fail := func(stage string, err error) (*ExportResult, error) {
		err = fmt.Errorf("%s: %w", stage, err)
		result.Status = StatusError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			result.Status = StatusCancelled
		}
		result.Error = err.Error()
		result.Duration = time.Since(start)
		log.Error("export failed", "stage", stage, "error", err, "read", result.EntitiesRead)
		return result, err
	}

	// 1. Resolve source and transforms.
	source, err := GetSource(job.SourceType)
	if err != nil {
		return fail("source", err)
	}
	if err := source.Spec().Validate(job.SourceCfg); err != nil {
		return fail("source", err)
	}
	transformers, err := buildTransformers(job.Transforms, e.Model)
	if err != nil {
		return fail("transforms", err)
	}

	// 2. Prepare the output directory; a stale script must not
	// outlive this run.
	opts := job.Options.withDefaults()
	if opts.OutputDir == "" {
		return fail("output", errors.New("output directory is required"))
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fail("output", err)
	}
	scriptPath := filepath.Join(opts.OutputDir, cypher.ScriptFileName)
	if err := os.Remove(scriptPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fail("output", err)
	}

	keys, releaseKeys, err := e.keySets(opts)
	if err != nil {
		return fail("key sets", err)
	}
	defer func() {
		if err := releaseKeys(); err != nil {
			log.Warn("release key sets", "error", err)
		}
	}()

	reg, err := export.NewRegistry(export.Options{
		Dir:           opts.OutputDir,
		Keys:          keys,
		Log:           log,
		ProgressEvery: e.ProgressEvery,
	})
	if err != nil {
		return fail("output", err)
	}
	dest := &graphWriter{projector: graph.NewProjector(opts.projection()), registry: reg}

	// 3. Stream, transform, project, write.
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	recCh, errCh := source.Read(readCtx, job.SourceCfg)
	log.Info("export started", "out", opts.OutputDir, "keys", opts.Keys)

	var runErr error
	for rec := range recCh {
		result.EntitiesRead++
		if runErr = e.process(rec, transformers, dest, result, log); runErr != nil {
			cancelRead()
			break
		}
	}
	go func() {
		for range recCh {
		}
	}()
	readErr := <-errCh

	stats := func() {
		for label, n := range reg.Stats() {
			result.Labels[label] = n
			result.RowsWritten += n
		}
	}
	abort := func(stage string, err error) (*ExportResult, error) {
		if cerr := dest.abort(); cerr != nil {
			log.Warn("close label files", "error", cerr)
		}
		stats()
		return fail(stage, err)
	}

	switch {
	case runErr != nil:
		return abort("write", runErr)
	case ctx.Err() != nil:
		return abort("read", ctx.Err())
	case readErr != nil:
		return abort("read", readErr)
	}

	// 4. Close files, then generate the script from what was written.
	script, err := dest.finish(opts.script())
	if err != nil {
		stats()
		return fail("finish", err)
	}
	if err := writeScript(scriptPath, script); err != nil {
		stats()
		return fail("script", err)
	}
	stats()

	result.Status = StatusSuccess
	result.ScriptPath = scriptPath
	result.Duration = time.Since(start)
	log.Info("export finished",
		"read", result.EntitiesRead,
		"skipped", result.EntitiesSkipped,
		"filtered", result.EntitiesFiltered,
		"rows", result.RowsWritten,
		"labels", len(result.Labels),
		"duration", result.Duration,
	)
	return result, nil
}

// process handles one record. Only errors that make the output unsafe
// are returned; bad input is counted and skipped.
func (e *Engine) process(rec Record, ts []Transformer, dest *graphWriter, result *ExportResult, log *logger.Logger) error {
	if rec.Err != nil {
		result.EntitiesSkipped++
		log.Warn("skipping undecodable record", "error", rec.Err)
		return nil
	}
	rec, keep := ApplyTransformers(rec, ts)
	if !keep {
		result.EntitiesFiltered++
		return nil
	}
	entity, err := e.Model.EntityFromMap(rec.Data)
	if err != nil {
		result.EntitiesSkipped++
		log.Warn("skipping invalid entity", "id", rec.ID(), "error", err)
		return nil
	}
	if err := dest.write(entity); err != nil {
		if errors.Is(err, graph.ErrMalformedEdge) {
			result.EntitiesSkipped++
			log.Warn("skipping malformed edge", "id", entity.ID, "error", err)
			return nil
		}
		return err
	}
	return nil
}

func (e *Engine) keySets(opts ExportOptions) (export.KeySetFactory, func() error, error) {
	switch opts.Keys {
	case KeysMemory:
		return export.MemoryKeySets(), func() error { return nil }, nil
	case KeysSQLite:
		if e.DiskKeys == nil {
			return nil, nil, errors.New("disk key sets are not available")
		}
		return e.DiskKeys(opts.OutputDir)
	default:
		return nil, nil, fmt.Errorf("unknown key store %q", opts.Keys)
	}
}

// Preview reads up to maxRows records from a source without writing
// anything, and summarizes their schemata.
func (e *Engine) Preview(ctx context.Context, sourceType string, cfg SourceConfig, maxRows int) ([]Record, *Summary, error) {
	source, err := GetSource(sourceType)
	if err != nil {
		return nil, nil, err
	}
	if err := source.Spec().Validate(cfg); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	recCh, errCh := source.Read(ctx, cfg)

	var records []Record
	counts := map[string]int{}
	sum := &Summary{}
	for rec := range recCh {
		if rec.Err != nil {
			sum.Invalid++
		} else {
			sum.Sampled++
			counts[rec.SchemaName()]++
		}
		records = append(records, rec)
		if len(records) >= maxRows {
			break
		}
	}
	full := len(records) >= maxRows
	cancel()

	// Drain remaining and check for errors.
	go func() {
		for range recCh {
		}
	}()
	if err := <-errCh; err != nil && !full {
		return records, sum, err
	}

	for name, n := range counts {
		sum.Schemata = append(sum.Schemata, SchemaCount{Schema: name, Count: n})
	}
	sortCounts(sum.Schemata)
	return records, sum, nil
}
