package service_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftmgraph/internal/domain"
	"ftmgraph/internal/etl"
	_ "ftmgraph/internal/etl/sources"
	"ftmgraph/internal/neo4jdb"
	"ftmgraph/internal/secret"
	"ftmgraph/internal/service"
	"ftmgraph/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// RunningJobsGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunningGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	require.True(t, g.TryLock("job-1"))
	assert.False(t, g.TryLock("job-1"), "second TryLock for same job must fail")
	assert.True(t, g.IsRunning("job-1"))
	require.True(t, g.TryLock("job-2"))
	g.Unlock("job-1")
	g.Unlock("job-2")

	assert.False(t, g.IsRunning("job-1"))
	require.True(t, g.TryLock("job-1"))
	g.Unlock("job-1")
}

func TestRunningGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard
	require.True(t, g.TryLock("job-a"))

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("job-a")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "test:event", map[string]string{"foo": "bar"})
	m.Emit(ctx, "test:event2", nil)

	events := m.Snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, "test:event", events[0].Event)
	assert.Equal(t, "test:event2", events[1].Event)
}

// ─────────────────────────────────────────────────────────────
// ExportService tests
// ─────────────────────────────────────────────────────────────

const entities = `{"id":"p1","schema":"Person","properties":{"name":["Jane Doe"],"topics":["sanction"]}}
{"id":"c1","schema":"Company","properties":{"name":["Acme Corp"]}}
{"id":"o1","schema":"Ownership","properties":{"owner":["p1"],"asset":["c1"]}}
`

type fakeLoader struct {
	mu    sync.Mutex
	stmts []string
}

func (f *fakeLoader) RunScript(_ context.Context, stmts []string) (*neo4jdb.LoadStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stmts = append(f.stmts, stmts...)
	return &neo4jdb.LoadStats{Statements: len(stmts), NodesCreated: 5}, nil
}

type fixture struct {
	svc     *service.ExportService
	emitter *service.MockEmitter
	loader  *fakeLoader
	secrets *secret.MemoryStore
	dir     string
	input   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "ftmgraph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	model, err := domain.DefaultModel()
	require.NoError(t, err)

	input := filepath.Join(dir, "in", "entities.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(input), 0o755))
	require.NoError(t, os.WriteFile(input, []byte(entities), 0o644))

	f := &fixture{
		emitter: &service.MockEmitter{},
		loader:  &fakeLoader{},
		secrets: secret.NewMemoryStore(),
		dir:     dir,
		input:   input,
	}
	f.svc = service.NewExportService(
		storage.NewJobStore(db),
		&etl.Engine{Model: model, DiskKeys: storage.Opener},
		f.loader,
		f.emitter,
		nil,
		service.Options{
			Defaults: etl.ExportOptions{OutputDir: filepath.Join(dir, "exports"), BatchSize: 100},
			Secrets:  f.secrets,
		},
	)
	t.Cleanup(f.svc.Stop)
	return f
}

func (f *fixture) create(t *testing.T, name string, mod func(*service.CreateJobInput)) *etl.ExportJob {
	t.Helper()
	in := service.CreateJobInput{
		Name:         name,
		SourceType:   "ftm_file",
		SourceConfig: map[string]any{"filePath": f.input},
		Enabled:      true,
	}
	if mod != nil {
		mod(&in)
	}
	job, err := f.svc.CreateJob(context.Background(), in)
	require.NoError(t, err)
	return job
}

func TestExportService_NewWithDefaults(t *testing.T) {
	svc := service.NewExportService(nil, nil, nil, nil, nil, service.Options{})
	require.NotNil(t, svc)
	svc.Stop()
	svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	svc.WaitRunning(ctx)
	assert.NoError(t, ctx.Err(), "WaitRunning must return at once without running jobs")
}

func TestExportService_CreateJobDefaults(t *testing.T) {
	f := newFixture(t)
	job := f.create(t, "Sanctions Daily", nil)

	assert.Equal(t, filepath.Join(f.dir, "exports", "sanctions-daily"), job.Options.OutputDir)
	assert.Equal(t, 100, job.Options.BatchSize)
	assert.Equal(t, etl.TriggerManual, job.TriggerType)

	jobs, err := f.svc.ListJobs()
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestExportService_CreateJobValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]service.CreateJobInput{
		"no name":        {SourceType: "ftm_file", SourceConfig: map[string]any{"filePath": f.input}},
		"unknown source": {Name: "x", SourceType: "ftp"},
		"missing config": {Name: "x", SourceType: "ftm_file"},
		"bad cron":       {Name: "x", SourceType: "ftm_file", SourceConfig: map[string]any{"filePath": f.input}, TriggerType: etl.TriggerSchedule, TriggerConfig: "every tuesday"},
		"bad trigger":    {Name: "x", SourceType: "ftm_file", SourceConfig: map[string]any{"filePath": f.input}, TriggerType: "webhook"},
	}
	for name, in := range cases {
		_, err := f.svc.CreateJob(ctx, in)
		assert.Error(t, err, name)
	}
}

func TestExportService_RunJob(t *testing.T) {
	f := newFixture(t)
	job := f.create(t, "run", func(in *service.CreateJobInput) {
		in.Options.Keys = etl.KeysSQLite
	})

	res, err := f.svc.RunJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, etl.StatusSuccess, res.Status)
	assert.Equal(t, 3, res.EntitiesRead)
	assert.Equal(t, 1, res.Labels["Person"])
	assert.Equal(t, 1, res.Labels["Company"])
	assert.Equal(t, 1, res.Labels["OWNERSHIP"])
	assert.FileExists(t, filepath.Join(job.Options.OutputDir, "load.cypher"))

	// The scratch key database is gone after the run.
	matches, err := filepath.Glob(filepath.Join(job.Options.OutputDir, ".keys-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	got, err := f.svc.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, etl.StatusSuccess, got.LastStatus)

	logs, err := f.svc.ListRunLogs(job.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 3, logs[0].EntitiesRead)
	assert.Equal(t, len(res.Labels), logs[0].Labels)

	events := f.emitter.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, service.EventJobCompleted, events[0].Event)
}

func TestExportService_RunJobFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	job := f.create(t, "broken", nil)
	require.NoError(t, os.Remove(f.input))

	res, err := f.svc.RunJob(context.Background(), job.ID)
	require.Error(t, err)
	assert.Equal(t, etl.StatusError, res.Status)

	got, err := f.svc.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, etl.StatusError, got.LastStatus)
	assert.NotEmpty(t, got.LastError)

	logs, err := f.svc.ListRunLogs(job.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, etl.StatusError, logs[0].Status)

	_, err = f.svc.LoadJob(context.Background(), job.ID)
	assert.Error(t, err, "a failed run leaves no script to load")
}

func TestExportService_LoadJob(t *testing.T) {
	f := newFixture(t)
	job := f.create(t, "load", nil)

	_, err := f.svc.RunJob(context.Background(), job.ID)
	require.NoError(t, err)

	res, err := f.svc.LoadJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Stats.NodesCreated)
	require.NotEmpty(t, f.loader.stmts)
	assert.Contains(t, f.loader.stmts[0], "CREATE CONSTRAINT")

	last := f.emitter.Snapshot()
	assert.Equal(t, service.EventJobLoaded, last[len(last)-1].Event)
}

func TestExportService_LoadJobWithoutNeo4j(t *testing.T) {
	svc := service.NewExportService(nil, nil, nil, nil, nil, service.Options{})
	_, err := svc.LoadJob(context.Background(), "x")
	assert.ErrorIs(t, err, service.ErrNeo4jNotConfigured)
}

func TestExportService_UpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.create(t, "old", nil)

	err := f.svc.UpdateJob(ctx, job.ID, service.CreateJobInput{
		Name:          "new",
		SourceType:    "ftm_file",
		SourceConfig:  map[string]any{"filePath": f.input},
		Options:       etl.ExportOptions{OutputDir: filepath.Join(f.dir, "custom")},
		TriggerType:   etl.TriggerSchedule,
		TriggerConfig: "@every 1h",
		Enabled:       true,
	})
	require.NoError(t, err)

	got, err := f.svc.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Name)
	assert.Equal(t, filepath.Join(f.dir, "custom"), got.Options.OutputDir)
	assert.Equal(t, etl.TriggerSchedule, got.TriggerType)

	require.NoError(t, f.svc.DeleteJob(ctx, job.ID))
	_, err = f.svc.GetJob(job.ID)
	assert.ErrorIs(t, err, storage.ErrJobNotFound)
}

func TestExportService_SourcePasswordInSecretStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := map[string]any{"filePath": f.input, "password": "hunter2"}
	job := f.create(t, "secret", func(in *service.CreateJobInput) {
		in.SourceConfig = input
	})

	assert.NotContains(t, job.SourceCfg, "password")
	ref, _ := job.SourceCfg["passwordRef"].(string)
	require.NotEmpty(t, ref)
	assert.Equal(t, "hunter2", input["password"], "the caller's config is not modified")

	pw, err := f.secrets.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(pw))

	stored, err := f.svc.GetJob(job.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.SourceCfg, "password")

	res, err := f.svc.RunJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, etl.StatusSuccess, res.Status)

	// Resubmitting the stored config keeps the reference.
	err = f.svc.UpdateJob(ctx, job.ID, service.CreateJobInput{
		Name:         "secret",
		SourceType:   "ftm_file",
		SourceConfig: stored.SourceCfg,
		Enabled:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.secrets.Len())

	// A new password replaces the old secret.
	err = f.svc.UpdateJob(ctx, job.ID, service.CreateJobInput{
		Name:         "secret",
		SourceType:   "ftm_file",
		SourceConfig: map[string]any{"filePath": f.input, "password": "changed"},
		Enabled:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.secrets.Len())
	old, err := f.secrets.Get(ref)
	require.NoError(t, err)
	assert.Nil(t, old)

	require.NoError(t, f.svc.DeleteJob(ctx, job.ID))
	assert.Equal(t, 0, f.secrets.Len())
}

func TestExportService_PreviewAndDiscover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := etl.SourceConfig{"filePath": f.input}

	prev, err := f.svc.PreviewSource(ctx, "ftm_file", cfg, 2)
	require.NoError(t, err)
	assert.Len(t, prev.Records, 2)
	assert.Equal(t, 2, prev.Summary.Sampled)

	sum, err := f.svc.DiscoverSource(ctx, "ftm_file", cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Sampled)

	var types []string
	for _, s := range f.svc.ListSources() {
		types = append(types, s.Type)
	}
	assert.Contains(t, types, "ftm_file")
}

func TestExportService_FileWatchTrigger(t *testing.T) {
	f := newFixture(t)
	job := f.create(t, "watched", func(in *service.CreateJobInput) {
		in.TriggerType = etl.TriggerFileWatch
		in.TriggerConfig = f.input
	})

	require.NoError(t, os.WriteFile(f.input, []byte(entities), 0o644))

	require.Eventually(t, func() bool {
		logs, err := f.svc.ListRunLogs(job.ID, 10)
		return err == nil && len(logs) > 0
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f.svc.WaitRunning(ctx)
	assert.FileExists(t, filepath.Join(job.Options.OutputDir, "load.cypher"))
}
