package etl

import (
	"time"

	"ftmgraph/internal/cypher"
	"ftmgraph/internal/graph"
)

// ── ExportJob ──────────────────────────────────────────────
// Orchestrates: source.Read → transform chain → projector → label
// files → load script.

const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"
	TriggerFileWatch = "file_watch"
)

const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusRunning   = "running"
	StatusCancelled = "cancelled"
)

const (
	KeysMemory = "memory"
	KeysSQLite = "sqlite"
)

// ExportOptions control where and how a job writes its graph.
type ExportOptions struct {
	OutputDir           string `json:"outputDir"`
	Prefix              string `json:"prefix,omitempty"`
	BatchSize           int    `json:"batchSize,omitempty"`
	Reset               bool   `json:"reset,omitempty"`
	MinIdentifierLength int    `json:"minIdentifierLength,omitempty"`
	SingleTokenNames    bool   `json:"singleTokenNames,omitempty"` // reify names without whitespace
	Keys                string `json:"keys,omitempty"`             // "memory" | "sqlite"
}

func (o ExportOptions) withDefaults() ExportOptions {
	if o.Prefix == "" {
		o.Prefix = cypher.DefaultPrefix
	}
	if o.BatchSize <= 0 {
		o.BatchSize = cypher.DefaultBatchSize
	}
	if o.MinIdentifierLength <= 0 {
		o.MinIdentifierLength = graph.DefaultConfig().MinIdentifierLength
	}
	if o.Keys == "" {
		o.Keys = KeysMemory
	}
	return o
}

func (o ExportOptions) projection() graph.Config {
	return graph.Config{
		MinIdentifierLength: o.MinIdentifierLength,
		NameRequiresSpace:   !o.SingleTokenNames,
	}
}

func (o ExportOptions) script() cypher.Options {
	return cypher.Options{
		Prefix:        o.Prefix,
		BatchSize:     o.BatchSize,
		Reset:         o.Reset,
		EntityLabel:   graph.EntityLabel,
		ReifiedLabels: graph.ReifiedLabels(),
	}
}

// ExportJob holds the configuration for a single export.
type ExportJob struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	SourceType    string            `json:"sourceType"`
	SourceCfg     SourceConfig      `json:"sourceConfig"`
	Transforms    []TransformConfig `json:"transforms,omitempty"`
	Options       ExportOptions     `json:"options"`
	TriggerType   string            `json:"triggerType"`   // "manual" | "schedule" | "file_watch"
	TriggerConfig string            `json:"triggerConfig"` // cron expression or watch path
	Enabled       bool              `json:"enabled"`
	LastRunAt     time.Time         `json:"lastRunAt"`
	LastStatus    string            `json:"lastStatus"` // "success" | "error" | "cancelled" | "running" | ""
	LastError     string            `json:"lastError"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// TransformConfig is a declarative transform definition (stored as JSON).
type TransformConfig struct {
	Type   string         `json:"type"` // "filter" | "schema" | "select" | "limit" | "dedupe"
	Config map[string]any `json:"config,omitempty"`
}

// ExportResult is the outcome of running an export job.
type ExportResult struct {
	JobID            string         `json:"jobId"`
	Status           string         `json:"status"`
	EntitiesRead     int            `json:"entitiesRead"`
	EntitiesFiltered int            `json:"entitiesFiltered"`
	EntitiesSkipped  int            `json:"entitiesSkipped"`
	RowsWritten      int            `json:"rowsWritten"`
	Labels           map[string]int `json:"labels"`
	ScriptPath       string         `json:"scriptPath,omitempty"`
	Duration         time.Duration  `json:"duration"`
	Error            string         `json:"error,omitempty"`
}

// RunLog is a historical record of an export run.
type RunLog struct {
	ID              string    `json:"id"`
	JobID           string    `json:"jobId"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	Status          string    `json:"status"`
	EntitiesRead    int       `json:"entitiesRead"`
	EntitiesSkipped int       `json:"entitiesSkipped"`
	RowsWritten     int       `json:"rowsWritten"`
	Labels          int       `json:"labels"`
	Error           string    `json:"error,omitempty"`
}
