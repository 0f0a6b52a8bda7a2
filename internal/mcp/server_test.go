package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftmgraph/internal/domain"
	"ftmgraph/internal/etl"
	_ "ftmgraph/internal/etl/sources"
	"ftmgraph/internal/service"
	"ftmgraph/internal/storage"
)

const entities = `{"id":"p1","schema":"Person","properties":{"name":["Jane Doe"]}}
{"id":"c1","schema":"Company","properties":{"name":["Acme Corp"]}}
`

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "ftmgraph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	model, err := domain.DefaultModel()
	require.NoError(t, err)

	input := filepath.Join(dir, "entities.json")
	require.NoError(t, os.WriteFile(input, []byte(entities), 0o644))

	svc := service.NewExportService(
		storage.NewJobStore(db),
		&etl.Engine{Model: model},
		nil, nil, nil,
		service.Options{Defaults: etl.ExportOptions{OutputDir: filepath.Join(dir, "out")}},
	)
	t.Cleanup(svc.Stop)
	return New(Deps{Exports: svc}), input
}

func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return h(context.Background(), req)
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestListExportSources(t *testing.T) {
	s, _ := newTestServer(t)
	res, err := call(t, s.handleListExportSources, nil)
	require.NoError(t, err)

	var specs []etl.SourceSpec
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &specs))
	var types []string
	for _, sp := range specs {
		types = append(types, sp.Type)
	}
	assert.Subset(t, types, []string{"ftm_file", "http", "database", "mongodb"})
}

func TestCreateRunAndListJob(t *testing.T) {
	s, input := newTestServer(t)

	// Source config may arrive as a JSON string or as an object.
	res, err := call(t, s.handleCreateExportJob, map[string]any{
		"name":             "Sanctions",
		"sourceType":       "ftm_file",
		"sourceConfigJSON": map[string]any{"filePath": input},
		"transformsJSON":   `[{"type":"schema","config":{"schemata":["Person"]}}]`,
		"optionsJSON":      `{"batchSize": 10}`,
	})
	require.NoError(t, err)

	var job etl.ExportJob
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &job))
	assert.Equal(t, "Sanctions", job.Name)
	assert.Equal(t, 10, job.Options.BatchSize)
	require.Len(t, job.Transforms, 1)

	res, err = call(t, s.handleRunExportJob, map[string]any{"jobId": job.ID})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	var result etl.ExportResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &result))
	assert.Equal(t, etl.StatusSuccess, result.Status)
	assert.Equal(t, 1, result.EntitiesFiltered)
	assert.Equal(t, 1, result.Labels["Person"])

	res, err = call(t, s.handleListExportJobs, nil)
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), job.ID)

	res, err = call(t, s.handleListExportRuns, map[string]any{"jobId": job.ID, "limit": float64(5)})
	require.NoError(t, err)
	var logs []etl.RunLog
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &logs))
	require.Len(t, logs, 1)

	var rr mcp.ReadResourceRequest
	rr.Params.URI = "ftmgraph://jobs/" + job.ID + "/runs"
	contents, err := s.handleJobRunsResource(context.Background(), rr)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	res, err = call(t, s.handleDeleteExportJob, map[string]any{"jobId": job.ID})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), job.ID)
}

func TestRunFailureReturnsCounts(t *testing.T) {
	s, input := newTestServer(t)
	res, err := call(t, s.handleCreateExportJob, map[string]any{
		"name":             "gone",
		"sourceType":       "ftm_file",
		"sourceConfigJSON": `{"filePath": "` + input + `"}`,
	})
	require.NoError(t, err)
	var job etl.ExportJob
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &job))
	require.NoError(t, os.Remove(input))

	res, err = call(t, s.handleRunExportJob, map[string]any{"jobId": job.ID})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), etl.StatusError)
}

func TestPreviewAndDiscover(t *testing.T) {
	s, input := newTestServer(t)
	args := map[string]any{
		"sourceType":       "ftm_file",
		"sourceConfigJSON": `{"filePath": "` + input + `"}`,
		"maxRows":          float64(1),
	}

	res, err := call(t, s.handlePreviewExportSource, args)
	require.NoError(t, err)
	var preview service.PreviewResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &preview))
	assert.Len(t, preview.Records, 1)

	res, err = call(t, s.handleDiscoverExportSource, args)
	require.NoError(t, err)
	var summary etl.Summary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &summary))
	assert.Equal(t, 2, summary.Sampled)
}

func TestToolArgumentErrors(t *testing.T) {
	s, _ := newTestServer(t)

	_, err := call(t, s.handleRunExportJob, map[string]any{})
	assert.Error(t, err)
	_, err = call(t, s.handlePreviewExportSource, map[string]any{"sourceType": "ftm_file"})
	assert.Error(t, err)
	_, err = call(t, s.handleCreateExportJob, map[string]any{
		"name": "x", "sourceType": "ftm_file", "sourceConfigJSON": "{not json",
	})
	assert.Error(t, err)
	_, err = call(t, s.handleLoadExportJob, map[string]any{"jobId": "x"})
	assert.ErrorIs(t, err, service.ErrNeo4jNotConfigured)
}

func TestJobsResource(t *testing.T) {
	s, _ := newTestServer(t)
	var rr mcp.ReadResourceRequest
	rr.Params.URI = jobsURI
	contents, err := s.handleJobsResource(context.Background(), rr)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "[]", text.Text)
}

func TestExtractJobIDFromURI(t *testing.T) {
	assert.Equal(t, "abc-123", extractJobIDFromURI("ftmgraph://jobs/abc-123/runs"))
	assert.Empty(t, extractJobIDFromURI("ftmgraph://jobs/abc/def/runs"))
	assert.Empty(t, extractJobIDFromURI("ftmgraph://jobs"))
	assert.Empty(t, extractJobIDFromURI("other://jobs/abc/runs"))
}

func TestEmitWithoutClients(t *testing.T) {
	s, _ := newTestServer(t)
	assert.NotPanics(t, func() {
		s.Emit(context.Background(), service.EventJobCompleted, &etl.ExportResult{JobID: "x"})
		s.Emit(context.Background(), service.EventJobLoaded, nil)
	})
}
