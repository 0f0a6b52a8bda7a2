package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("graph_pipeline",
		mcp.WithPromptDescription("Guide through turning an entity source into a Neo4j graph"),
		mcp.WithArgument("sourceType",
			mcp.ArgumentDescription("Entity source type (e.g. ftm_file, http, database, mongodb)"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("description",
			mcp.ArgumentDescription("What the graph should contain"),
			mcp.RequiredArgument(),
		),
	), s.handleGraphPipelinePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("scheduled_export",
		mcp.WithPromptDescription("Set up an export job that reruns on a schedule"),
		mcp.WithArgument("schedule",
			mcp.ArgumentDescription("Cron expression, e.g. @daily or 0 3 * * *"),
			mcp.RequiredArgument(),
		),
	), s.handleScheduledExportPrompt)
}

func (s *Server) handleGraphPipelinePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sourceType := req.Params.Arguments["sourceType"]
	description := req.Params.Arguments["description"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Build a graph from a %s source", sourceType),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Build a Neo4j graph: %s. Follow these steps:

1. Use list_export_sources to find the configuration fields of source type "%s"
2. Use discover_export_source to check which schemata the source contains
3. Use preview_export_source to look at a few entities
4. Create the job with create_export_job; add a "schema" transform if only some schemata are wanted
5. Run it with run_export_job and check the per-label row counts in the result
6. Load it with load_export_job once the counts look right

Report the labels written and any skipped entities.`, description, sourceType),
				},
			},
		},
	}, nil
}

func (s *Server) handleScheduledExportPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	schedule := req.Params.Arguments["schedule"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Schedule an export: %s", schedule),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Set up an export job that runs on the schedule "%s":

1. Ask which source to export, then verify it with preview_export_source
2. Create the job with create_export_job, triggerType "schedule" and triggerConfig "%s"
3. Run it once with run_export_job so the first output exists
4. Use list_export_runs later to confirm the scheduled runs succeed

Scheduled runs only happen while "ftmgraph serve" is running.`, schedule, schedule),
				},
			},
		},
	}, nil
}
