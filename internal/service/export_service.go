package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-openapi/inflect"
	"github.com/robfig/cron/v3"

	"ftmgraph/internal/cypher"
	"ftmgraph/internal/etl"
	"ftmgraph/internal/logger"
	"ftmgraph/internal/neo4jdb"
	"ftmgraph/internal/secret"
	"ftmgraph/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Export Service: business logic for export jobs
// ─────────────────────────────────────────────────────────────

// ErrNeo4jNotConfigured is returned by LoadJob without a Neo4j client.
var ErrNeo4jNotConfigured = errors.New("neo4j is not configured")

// Event names emitted by the service.
const (
	EventJobCompleted = "export:job-completed"
	EventJobLoaded    = "export:job-loaded"
)

// ScriptRunner executes load script statements against a graph database.
type ScriptRunner interface {
	RunScript(ctx context.Context, stmts []string) (*neo4jdb.LoadStats, error)
}

// Options configure an ExportService.
type Options struct {
	// RunTimeout bounds a single job run. Zero means 5 minutes.
	RunTimeout time.Duration
	// Defaults fill the unset export options of new jobs. A job
	// without an output directory gets a subdirectory of
	// Defaults.OutputDir named after the job.
	Defaults etl.ExportOptions
	// Secrets holds source passwords. When nil they are stored with
	// the job configuration.
	Secrets secret.SecretStore
}

// ExportService manages export jobs, scheduling, and file watching.
// It is decoupled from its callers via the EventEmitter interface.
type ExportService struct {
	store       *storage.JobStore
	engine      *etl.Engine
	loader      ScriptRunner
	emitter     EventEmitter
	log         *logger.Logger
	opts        Options
	runningJobs runningJobsGuard

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewExportService creates an ExportService ready for use. loader may
// be nil when no graph database is configured.
func NewExportService(
	store *storage.JobStore,
	engine *etl.Engine,
	loader ScriptRunner,
	emitter EventEmitter,
	log *logger.Logger,
	opts Options,
) *ExportService {
	if log == nil {
		log = logger.Nop()
	}
	if emitter == nil {
		emitter = NewLogEmitter(log)
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 5 * time.Minute
	}
	return &ExportService{
		store:   store,
		engine:  engine,
		loader:  loader,
		emitter: emitter,
		log:     log.With("service", "export"),
		opts:    opts,
	}
}

// SetEmitter replaces the event emitter. It must be called before
// RestartWatchers or any run.
func (s *ExportService) SetEmitter(e EventEmitter) {
	if e == nil {
		e = NewLogEmitter(s.log)
	}
	s.emitter = e
}

// ── Job CRUD ───────────────────────────────────────────────

type CreateJobInput struct {
	Name          string                `json:"name"`
	SourceType    string                `json:"sourceType"`
	SourceConfig  map[string]any        `json:"sourceConfig"`
	Transforms    []etl.TransformConfig `json:"transforms"`
	Options       etl.ExportOptions     `json:"options"`
	TriggerType   string                `json:"triggerType"`
	TriggerConfig string                `json:"triggerConfig"`
	Enabled       bool                  `json:"enabled"`
}

func (s *ExportService) validate(input CreateJobInput) error {
	if input.Name == "" {
		return fmt.Errorf("name is required")
	}
	src, err := etl.GetSource(input.SourceType)
	if err != nil {
		return err
	}
	if err := src.Spec().Validate(input.SourceConfig); err != nil {
		return err
	}
	switch input.TriggerType {
	case "", etl.TriggerManual:
	case etl.TriggerSchedule:
		if _, err := cron.ParseStandard(input.TriggerConfig); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", input.TriggerConfig, err)
		}
	case etl.TriggerFileWatch:
		if input.TriggerConfig == "" {
			return fmt.Errorf("file_watch trigger needs a path")
		}
	default:
		return fmt.Errorf("unknown trigger type: %q", input.TriggerType)
	}
	return nil
}

// withDefaults fills unset options from the service defaults.
func (s *ExportService) withDefaults(name string, o etl.ExportOptions) (etl.ExportOptions, error) {
	d := s.opts.Defaults
	if o.OutputDir == "" {
		if d.OutputDir == "" {
			return o, fmt.Errorf("output directory is required")
		}
		dir := inflect.Parameterize(name)
		if dir == "" {
			dir = "job"
		}
		o.OutputDir = filepath.Join(d.OutputDir, dir)
	}
	if o.Prefix == "" {
		o.Prefix = d.Prefix
	}
	if o.BatchSize == 0 {
		o.BatchSize = d.BatchSize
	}
	if o.MinIdentifierLength == 0 {
		o.MinIdentifierLength = d.MinIdentifierLength
	}
	if o.Keys == "" {
		o.Keys = d.Keys
	}
	return o, nil
}

func (s *ExportService) CreateJob(ctx context.Context, input CreateJobInput) (*etl.ExportJob, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}
	opts, err := s.withDefaults(input.Name, input.Options)
	if err != nil {
		return nil, err
	}

	sourceCfg, err := s.stashPassword(input.SourceConfig)
	if err != nil {
		return nil, err
	}

	job := &etl.ExportJob{
		Name:          input.Name,
		SourceType:    input.SourceType,
		SourceCfg:     sourceCfg,
		Transforms:    input.Transforms,
		Options:       opts,
		TriggerType:   input.TriggerType,
		TriggerConfig: input.TriggerConfig,
		Enabled:       input.Enabled,
	}
	if job.TriggerType == "" {
		job.TriggerType = etl.TriggerManual
	}

	if err := s.store.CreateJob(job); err != nil {
		s.dropPassword(job.SourceCfg)
		return nil, fmt.Errorf("create export job: %w", err)
	}
	s.log.Info("job created", "job", job.ID, "name", job.Name, "source", job.SourceType, "trigger", job.TriggerType)
	s.RestartWatchers(ctx)
	return job, nil
}

func (s *ExportService) GetJob(id string) (*etl.ExportJob, error) {
	return s.store.GetJob(id)
}

func (s *ExportService) ListJobs() ([]etl.ExportJob, error) {
	return s.store.ListJobs()
}

func (s *ExportService) UpdateJob(ctx context.Context, id string, input CreateJobInput) error {
	if err := s.validate(input); err != nil {
		return err
	}
	job, err := s.store.GetJob(id)
	if err != nil {
		return err
	}
	opts, err := s.withDefaults(input.Name, input.Options)
	if err != nil {
		return err
	}
	sourceCfg, err := s.stashPassword(input.SourceConfig)
	if err != nil {
		return err
	}
	oldCfg := job.SourceCfg

	job.Name = input.Name
	job.SourceType = input.SourceType
	job.SourceCfg = sourceCfg
	job.Transforms = input.Transforms
	job.Options = opts
	job.TriggerType = input.TriggerType
	job.TriggerConfig = input.TriggerConfig
	job.Enabled = input.Enabled
	if job.TriggerType == "" {
		job.TriggerType = etl.TriggerManual
	}

	if err := s.store.UpdateJob(job); err != nil {
		s.dropPassword(sourceCfg)
		return err
	}
	if oldCfg[passwordRefField] != sourceCfg[passwordRefField] {
		s.dropPassword(oldCfg)
	}
	s.RestartWatchers(ctx)
	return nil
}

func (s *ExportService) DeleteJob(ctx context.Context, id string) error {
	if s.runningJobs.IsRunning(id) {
		return fmt.Errorf("job %s is running", id)
	}
	job, err := s.store.GetJob(id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteJob(id); err != nil {
		return err
	}
	s.dropPassword(job.SourceCfg)
	s.RestartWatchers(ctx)
	return nil
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes a single export job synchronously, records a run
// log and emits EventJobCompleted.
func (s *ExportService) RunJob(ctx context.Context, id string) (*etl.ExportResult, error) {
	// Prevent concurrent execution of the same job.
	if !s.runningJobs.TryLock(id) {
		return nil, fmt.Errorf("job %s is already running", id)
	}
	defer s.runningJobs.Unlock(id)

	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	if job.SourceCfg, err = s.resolvePassword(job.SourceCfg); err != nil {
		return nil, err
	}

	if err := s.store.UpdateJobStatus(id, etl.StatusRunning, ""); err != nil {
		s.log.Warn("update job status", "job", id, "error", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()

	start := time.Now().UTC()
	result, runErr := s.engine.RunExport(runCtx, job)

	runLog := &etl.RunLog{
		JobID:           id,
		StartedAt:       start,
		FinishedAt:      time.Now().UTC(),
		Status:          result.Status,
		EntitiesRead:    result.EntitiesRead,
		EntitiesSkipped: result.EntitiesSkipped,
		RowsWritten:     result.RowsWritten,
		Labels:          len(result.Labels),
		Error:           result.Error,
	}
	if err := s.store.CreateRunLog(runLog); err != nil {
		s.log.Warn("create run log", "job", id, "error", err)
	}
	if err := s.store.UpdateJobStatus(id, result.Status, result.Error); err != nil {
		s.log.Warn("update job status", "job", id, "error", err)
	}

	s.emitter.Emit(ctx, EventJobCompleted, result)
	return result, runErr
}

// LoadResult is the outcome of loading a job's output into Neo4j.
type LoadResult struct {
	JobID      string             `json:"jobId"`
	ScriptPath string             `json:"scriptPath"`
	Stats      *neo4jdb.LoadStats `json:"stats"`
}

// LoadJob executes the load script of a job's last successful run.
func (s *ExportService) LoadJob(ctx context.Context, id string) (*LoadResult, error) {
	if s.loader == nil {
		return nil, ErrNeo4jNotConfigured
	}
	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(job.Options.OutputDir, cypher.ScriptFileName)
	stmts, err := cypher.ReadScriptFile(path)
	if err != nil {
		return nil, fmt.Errorf("job %s has no load script (run it first): %w", id, err)
	}

	s.log.Info("loading graph", "job", id, "script", path, "statements", len(stmts))
	stats, err := s.loader.RunScript(ctx, stmts)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	res := &LoadResult{JobID: id, ScriptPath: path, Stats: stats}
	s.emitter.Emit(ctx, EventJobLoaded, res)
	return res, nil
}

// ListSources returns the available source descriptors.
func (s *ExportService) ListSources() []etl.SourceSpec {
	return etl.ListSources()
}

// ListRunLogs returns the most recent run logs of a job.
func (s *ExportService) ListRunLogs(jobID string, limit int) ([]etl.RunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListRunLogs(jobID, limit)
}

// ── Preview / Discovery ────────────────────────────────────

// PreviewResult is the response from PreviewSource.
type PreviewResult struct {
	Summary *etl.Summary `json:"summary"`
	Records []etl.Record `json:"records"`
}

func (s *ExportService) PreviewSource(ctx context.Context, sourceType string, cfg etl.SourceConfig, maxRows int) (*PreviewResult, error) {
	if maxRows <= 0 {
		maxRows = 10
	}
	previewCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	records, summary, err := s.engine.Preview(previewCtx, sourceType, cfg, maxRows)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Summary: summary, Records: records}, nil
}

func (s *ExportService) DiscoverSource(ctx context.Context, sourceType string, cfg etl.SourceConfig) (*etl.Summary, error) {
	source, err := etl.GetSource(sourceType)
	if err != nil {
		return nil, err
	}
	discCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return source.Discover(discCtx, cfg)
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher/cron and rebuilds them from scratch.
func (s *ExportService) RestartWatchers(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()

	jobs, err := s.store.ListEnabledTriggeredJobs()
	if err != nil {
		s.log.Error("watcher: list jobs", "error", err)
		return
	}
	// Triggered runs outlive the request that configured them.
	runCtx := context.WithoutCancel(ctx)

	// ── Cron jobs ──
	c := cron.New()
	scheduled := 0
	for _, j := range jobs {
		if j.TriggerType != etl.TriggerSchedule || j.TriggerConfig == "" {
			continue
		}
		jid, expr := j.ID, j.TriggerConfig
		_, err := c.AddFunc(expr, func() {
			s.log.Info("cron: running job", "job", jid)
			if _, err := s.RunJob(runCtx, jid); err != nil {
				s.log.Error("cron: job failed", "job", jid, "error", err)
			}
		})
		if err != nil {
			s.log.Error("cron: invalid expression", "job", jid, "expr", expr, "error", err)
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		s.cronSched = c
		s.log.Info("cron: scheduled jobs", "count", scheduled)
	}

	// ── File watchers ──
	pathToJob := make(map[string]string)
	for _, j := range jobs {
		if j.TriggerType != etl.TriggerFileWatch || j.TriggerConfig == "" {
			continue
		}
		absPath, err := filepath.Abs(j.TriggerConfig)
		if err != nil {
			s.log.Error("watcher: bad path", "path", j.TriggerConfig, "error", err)
			continue
		}
		pathToJob[absPath] = j.ID
	}
	if len(pathToJob) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Error("watcher: create", "error", err)
		return
	}
	s.watcher = watcher

	// Watch parent directories so editors that replace files are seen.
	watchedDirs := make(map[string]bool)
	for absPath := range pathToJob {
		dir := filepath.Dir(absPath)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.log.Error("watcher: watch dir", "dir", dir, "error", err)
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go s.watchLoop(watchCtx, runCtx, watcher, pathToJob)

	s.log.Info("watcher: watching files", "count", len(pathToJob))
}

// watchLoop debounces change events per job and runs the job once the
// file has been quiet for 500ms.
func (s *ExportService) watchLoop(watchCtx, runCtx context.Context, watcher *fsnotify.Watcher, pathToJob map[string]string) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for {
		select {
		case <-watchCtx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			jobID, ok := pathToJob[absPath]
			if !ok {
				continue
			}
			if t, exists := timers[jobID]; exists {
				t.Stop()
			}
			jid := jobID
			timers[jobID] = time.AfterFunc(500*time.Millisecond, func() {
				if watchCtx.Err() != nil {
					return
				}
				s.log.Info("watcher: file changed, running job", "path", absPath, "job", jid)
				if _, err := s.RunJob(runCtx, jid); err != nil {
					s.log.Error("watcher: run failed", "job", jid, "error", err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("watcher: error", "error", err)
		}
	}
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ExportService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *ExportService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()
}

func (s *ExportService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
