package mcpserver

import (
	"context"
	"fmt"

	"ftmgraph/internal/etl"
	"ftmgraph/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

const transformsHelp = `Optional JSON array of transforms applied to raw entities before projection. Each transform has {type, config}. Available types:
- filter: {field, op (eq|contains|gt|lt|exists), value} - keep entities matching; field is "id", "schema" or a property name
- schema: {schemata: ["Person","Company"]} - keep entities whose schema is one of these or a descendant
- select: {properties: ["name","country"]} - keep only these properties
- limit: {count} - stop after N entities
- dedupe: {} - drop repeated entity ids
Example: [{"type":"schema","config":{"schemata":["LegalEntity"]}},{"type":"filter","config":{"field":"country","op":"eq","value":"de"}}]`

const optionsHelp = `Optional JSON export options: {outputDir, prefix, batchSize, reset, minIdentifierLength, singleTokenNames, keys ("memory"|"sqlite")}. Unset values use the server defaults; outputDir defaults to a directory named after the job.`

func (s *Server) registerExportTools() {
	s.mcp.AddTool(mcp.NewTool("list_export_sources",
		mcp.WithDescription("List available entity source types with their configuration schemas"),
	), s.handleListExportSources)

	s.mcp.AddTool(mcp.NewTool("discover_export_source",
		mcp.WithDescription("Sample an entity source and count the schemata it contains"),
		mcp.WithString("sourceType", mcp.Description("Source type"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
	), s.handleDiscoverExportSource)

	s.mcp.AddTool(mcp.NewTool("preview_export_source",
		mcp.WithDescription("Read the first entities of a source without writing anything"),
		mcp.WithString("sourceType", mcp.Description("Source type"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
		mcp.WithNumber("maxRows", mcp.Description("Number of entities to read (default 10)")),
	), s.handlePreviewExportSource)

	s.mcp.AddTool(mcp.NewTool("create_export_job",
		mcp.WithDescription("Create an export job that turns an entity source into per-label CSV files and a Neo4j load.cypher script"),
		mcp.WithString("name", mcp.Description("Job name"), mcp.Required()),
		mcp.WithString("sourceType", mcp.Description("Source type (use list_export_sources to see available types)"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
		mcp.WithString("transformsJSON", mcp.Description(transformsHelp)),
		mcp.WithString("optionsJSON", mcp.Description(optionsHelp)),
		mcp.WithString("triggerType", mcp.Description("manual (default), schedule or file_watch")),
		mcp.WithString("triggerConfig", mcp.Description("Cron expression for schedule, file path for file_watch")),
	), s.handleCreateExportJob)

	s.mcp.AddTool(mcp.NewTool("list_export_jobs",
		mcp.WithDescription("List all export jobs with their last run status"),
	), s.handleListExportJobs)

	s.mcp.AddTool(mcp.NewTool("run_export_job",
		mcp.WithDescription("Execute an export job. Overwrites the CSV files and load script in its output directory."),
		mcp.WithString("jobId", mcp.Description("Export job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunExportJob)

	s.mcp.AddTool(mcp.NewTool("list_export_runs",
		mcp.WithDescription("List the most recent runs of an export job"),
		mcp.WithString("jobId", mcp.Description("Export job ID"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 50)")),
	), s.handleListExportRuns)

	s.mcp.AddTool(mcp.NewTool("load_export_job",
		mcp.WithDescription("Run the load script of a job's last successful export against Neo4j. With the reset option the graph is cleared first."),
		mcp.WithString("jobId", mcp.Description("Export job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleLoadExportJob)

	s.mcp.AddTool(mcp.NewTool("delete_export_job",
		mcp.WithDescription("Delete an export job and its run history. Output files are kept."),
		mcp.WithString("jobId", mcp.Description("Export job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteExportJob)
}

func (s *Server) handleListExportSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.exports.ListSources())
}

// sourceArgs reads the sourceType / sourceConfigJSON pair.
func sourceArgs(req mcp.CallToolRequest) (string, etl.SourceConfig, error) {
	sourceType := req.GetString("sourceType", "")
	if sourceType == "" {
		return "", nil, fmt.Errorf("sourceType is required")
	}
	var cfg etl.SourceConfig
	ok, err := jsonArg(req.GetArguments(), "sourceConfigJSON", &cfg)
	if err != nil {
		return "", nil, fmt.Errorf("parse sourceConfig: %w", err)
	}
	if !ok {
		return "", nil, fmt.Errorf("sourceConfigJSON is required")
	}
	return sourceType, cfg, nil
}

func (s *Server) handleDiscoverExportSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceType, cfg, err := sourceArgs(req)
	if err != nil {
		return nil, err
	}
	summary, err := s.exports.DiscoverSource(ctx, sourceType, cfg)
	if err != nil {
		return nil, fmt.Errorf("discover source: %w", err)
	}
	return jsonResult(summary)
}

func (s *Server) handlePreviewExportSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceType, cfg, err := sourceArgs(req)
	if err != nil {
		return nil, err
	}
	preview, err := s.exports.PreviewSource(ctx, sourceType, cfg, req.GetInt("maxRows", 10))
	if err != nil {
		return nil, fmt.Errorf("preview source: %w", err)
	}
	return jsonResult(preview)
}

func (s *Server) handleCreateExportJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sourceType, cfg, err := sourceArgs(req)
	if err != nil {
		return nil, err
	}

	var transforms []etl.TransformConfig
	if _, err := jsonArg(args, "transformsJSON", &transforms); err != nil {
		return nil, fmt.Errorf("parse transforms: %w", err)
	}
	var opts etl.ExportOptions
	if _, err := jsonArg(args, "optionsJSON", &opts); err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}

	job, err := s.exports.CreateJob(ctx, service.CreateJobInput{
		Name:          req.GetString("name", ""),
		SourceType:    sourceType,
		SourceConfig:  cfg,
		Transforms:    transforms,
		Options:       opts,
		TriggerType:   req.GetString("triggerType", etl.TriggerManual),
		TriggerConfig: req.GetString("triggerConfig", ""),
		Enabled:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("create export job: %w", err)
	}
	return jsonResult(job)
}

func (s *Server) handleListExportJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := s.exports.ListJobs()
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	if jobs == nil {
		jobs = []etl.ExportJob{}
	}
	return jsonResult(jobs)
}

func (s *Server) handleRunExportJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	result, err := s.exports.RunJob(ctx, jobID)
	if err != nil {
		// A finished run with an error status still carries useful counts.
		if result != nil {
			res, jerr := jsonResult(result)
			if jerr != nil {
				return nil, jerr
			}
			res.IsError = true
			return res, nil
		}
		return nil, fmt.Errorf("run export job: %w", err)
	}
	return jsonResult(result)
}

func (s *Server) handleListExportRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	logs, err := s.exports.ListRunLogs(jobID, req.GetInt("limit", 50))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if logs == nil {
		logs = []etl.RunLog{}
	}
	return jsonResult(logs)
}

func (s *Server) handleLoadExportJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	res, err := s.exports.LoadJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load export job: %w", err)
	}
	return jsonResult(res)
}

func (s *Server) handleDeleteExportJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	if err := s.exports.DeleteJob(ctx, jobID); err != nil {
		return nil, fmt.Errorf("delete export job: %w", err)
	}
	return textResult(fmt.Sprintf("Deleted export job %s", jobID)), nil
}
