package etl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftmgraph/internal/cypher"
	"ftmgraph/internal/domain"
	"ftmgraph/internal/etl"
)

// memorySource replays the records passed in its config.
type memorySource struct{}

func init() { etl.RegisterSource(&memorySource{}) }

func (s *memorySource) Spec() etl.SourceSpec {
	return etl.SourceSpec{Type: "test_memory", Label: "Memory"}
}

func (s *memorySource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Summary, error) {
	return etl.Sample(ctx, s, cfg, 100)
}

func (s *memorySource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		records, _ := cfg["records"].([]etl.Record)
		for _, rec := range records {
			select {
			case out <- rec:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err, ok := cfg["err"].(error); ok {
			errCh <- err
		}
	}()
	return out, errCh
}

func rec(id, schema string, props map[string]any) etl.Record {
	return etl.Record{Data: map[string]any{"id": id, "schema": schema, "properties": props}}
}

func newEngine(t *testing.T) *etl.Engine {
	t.Helper()
	m, err := domain.DefaultModel()
	require.NoError(t, err)
	return &etl.Engine{Model: m}
}

func job(t *testing.T, records []etl.Record) *etl.ExportJob {
	t.Helper()
	return &etl.ExportJob{
		ID:         "job-1",
		SourceType: "test_memory",
		SourceCfg:  etl.SourceConfig{"records": records},
		Options:    etl.ExportOptions{OutputDir: filepath.Join(t.TempDir(), "graph"), BatchSize: 500},
	}
}

func TestRunExportPersonAndName(t *testing.T) {
	j := job(t, []etl.Record{
		rec("p1", "Person", map[string]any{"name": []any{"Jane Doe"}}),
		rec("p1", "Person", map[string]any{"name": []any{"Jane Doe"}}),
	})
	res, err := newEngine(t).RunExport(context.Background(), j)
	require.NoError(t, err)

	assert.Equal(t, etl.StatusSuccess, res.Status)
	assert.Equal(t, 2, res.EntitiesRead)
	assert.Equal(t, map[string]int{"Person": 1, "Name": 1, "HAS_NAME": 1}, res.Labels)
	assert.Equal(t, 3, res.RowsWritten)
	assert.Equal(t, filepath.Join(j.Options.OutputDir, "load.cypher"), res.ScriptPath)

	entries, err := os.ReadDir(j.Options.OutputDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"Person.nodes.csv", "Name.nodes.csv", "HAS_NAME.edges.csv", "load.cypher"}, names)

	stmts, err := cypher.ReadScriptFile(res.ScriptPath)
	require.NoError(t, err)
	var loads, constraints, prunes int
	for _, s := range stmts {
		switch {
		case strings.HasPrefix(s, "LOAD CSV"):
			loads++
			assert.Contains(t, s, "IN TRANSACTIONS OF 500 ROWS")
		case strings.HasPrefix(s, "CREATE CONSTRAINT"):
			constraints++
		case strings.HasPrefix(s, "MATCH (n:`Name`)"):
			prunes++
		}
	}
	assert.Equal(t, 3, loads)
	assert.Equal(t, 2, constraints)
	assert.Equal(t, 1, prunes)
}

func TestRunExportSkipsMalformedInput(t *testing.T) {
	j := job(t, []etl.Record{
		{Err: errors.New("bad json")},
		rec("", "Person", nil),
		rec("x1", "Spaceship", nil),
		rec("c1", "Company", map[string]any{"name": "Acme Corp"}),
	})
	res, err := newEngine(t).RunExport(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, 4, res.EntitiesRead)
	assert.Equal(t, 3, res.EntitiesSkipped)
	assert.Equal(t, 1, res.Labels["Company"])
}

func TestRunExportSkipsMalformedEdges(t *testing.T) {
	m, err := domain.ParseModel([]byte(`
schemata:
  Person:
    properties:
      name: { type: name }
  Broken:
    edge: { source: from, target: to }
    properties:
      from: { type: entity }
`))
	require.NoError(t, err)
	e := &etl.Engine{Model: m}
	j := job(t, []etl.Record{
		rec("b1", "Broken", map[string]any{"from": "x"}),
		rec("p1", "Person", map[string]any{"name": "Jane Doe"}),
	})
	res, err := e.RunExport(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EntitiesSkipped)
	assert.Equal(t, 1, res.Labels["Person"])
}

func TestRunExportReadErrorLeavesNoScript(t *testing.T) {
	j := job(t, []etl.Record{rec("p1", "Person", map[string]any{"name": "Jane Doe"})})
	require.NoError(t, os.MkdirAll(j.Options.OutputDir, 0o755))
	stale := filepath.Join(j.Options.OutputDir, "load.cypher")
	require.NoError(t, os.WriteFile(stale, []byte("// old"), 0o644))

	j.SourceCfg["err"] = errors.New("connection reset")
	res, err := newEngine(t).RunExport(context.Background(), j)
	require.Error(t, err)
	assert.Equal(t, etl.StatusError, res.Status)
	assert.Contains(t, res.Error, "connection reset")
	assert.NoFileExists(t, stale)

	// Files written before the failure are closed and readable.
	data, err := os.ReadFile(filepath.Join(j.Options.OutputDir, "Person.nodes.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "p1")
}

func TestRunExportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j := job(t, []etl.Record{rec("p1", "Person", nil), rec("p2", "Person", nil)})
	res, err := newEngine(t).RunExport(ctx, j)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, etl.StatusCancelled, res.Status)
	assert.NoFileExists(t, filepath.Join(j.Options.OutputDir, "load.cypher"))
}

func TestRunExportTransforms(t *testing.T) {
	j := job(t, []etl.Record{
		rec("p1", "Person", map[string]any{"name": "Jane Doe", "country": "de"}),
		rec("p1", "Person", map[string]any{"name": "Jane Doe", "country": "de"}),
		rec("p2", "Person", map[string]any{"name": "John Doe", "country": "fr"}),
		rec("c1", "Company", map[string]any{"name": "Acme Corp", "country": "de"}),
		rec("o1", "Ownership", map[string]any{"owner": "p1", "asset": "c1"}),
	})
	j.Transforms = []etl.TransformConfig{
		{Type: "dedupe"},
		{Type: "schema", Config: map[string]any{"schemata": []any{"LegalEntity"}}},
		{Type: "filter", Config: map[string]any{"field": "country", "op": "eq", "value": "de"}},
	}
	res, err := newEngine(t).RunExport(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, 5, res.EntitiesRead)
	assert.Equal(t, 3, res.EntitiesFiltered)
	assert.Equal(t, 1, res.Labels["Person"])
	assert.Equal(t, 1, res.Labels["Company"])
	assert.NotContains(t, res.Labels, "OWNERSHIP")
}

func TestRunExportRejectsBadJobs(t *testing.T) {
	e := newEngine(t)

	j := job(t, nil)
	j.SourceType = "nope"
	_, err := e.RunExport(context.Background(), j)
	assert.Error(t, err)

	j = job(t, nil)
	j.Transforms = []etl.TransformConfig{{Type: "explode"}}
	_, err = e.RunExport(context.Background(), j)
	assert.Error(t, err)

	j = job(t, nil)
	j.Options.Keys = "sqlite"
	_, err = e.RunExport(context.Background(), j)
	assert.Error(t, err)

	j = job(t, nil)
	j.Options.OutputDir = ""
	_, err = e.RunExport(context.Background(), j)
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	cfg := etl.SourceConfig{"records": []etl.Record{
		rec("p1", "Person", nil),
		rec("p2", "Person", nil),
		rec("c1", "Company", nil),
		rec("c2", "Company", nil),
		rec("c3", "Company", nil),
	}}
	records, sum, err := newEngine(t).Preview(context.Background(), "test_memory", cfg, 4)
	require.NoError(t, err)
	assert.Len(t, records, 4)
	assert.Equal(t, 4, sum.Sampled)
	assert.Equal(t, []etl.SchemaCount{{Schema: "Company", Count: 2}, {Schema: "Person", Count: 2}}, sum.Schemata)

	src, err := etl.GetSource("test_memory")
	require.NoError(t, err)
	sum, err = src.Discover(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Sampled)
	assert.Equal(t, "Company", sum.Schemata[0].Schema)
}
