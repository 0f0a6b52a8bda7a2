package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	jobsURI      = "ftmgraph://jobs"
	jobRunsURI   = "ftmgraph://jobs/{jobId}/runs"
	jobURIPrefix = "ftmgraph://jobs/"
)

func (s *Server) registerResources() {
	// ── ftmgraph://jobs ────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		jobsURI,
		"Export Jobs",
		mcp.WithMIMEType("application/json"),
	), s.handleJobsResource)

	// ── ftmgraph://jobs/{jobId}/runs ───────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			jobRunsURI,
			"Runs of an Export Job",
		),
		s.handleJobRunsResource,
	)
}

func (s *Server) handleJobsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jobs, err := s.exports.ListJobs()
	if err != nil {
		return nil, err
	}

	type jobSummary struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Source     string `json:"source"`
		Trigger    string `json:"trigger"`
		LastStatus string `json:"lastStatus"`
	}

	summaries := []jobSummary{}
	for _, j := range jobs {
		summaries = append(summaries, jobSummary{
			ID:         j.ID,
			Name:       j.Name,
			Source:     j.SourceType,
			Trigger:    j.TriggerType,
			LastStatus: j.LastStatus,
		})
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      jobsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleJobRunsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	jobID := extractJobIDFromURI(uri)
	if jobID == "" {
		return nil, fmt.Errorf("could not extract jobId from URI: %s", uri)
	}

	logs, err := s.exports.ListRunLogs(jobID, 0)
	if err != nil {
		return nil, err
	}

	data, _ := json.MarshalIndent(logs, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// extractJobIDFromURI extracts the job ID from "ftmgraph://jobs/{id}/runs".
func extractJobIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, jobURIPrefix)
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/runs")
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
