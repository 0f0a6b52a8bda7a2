package app

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ftmgraph/internal/cypher"
	"ftmgraph/internal/etl"
	"ftmgraph/internal/neo4jdb"
	"ftmgraph/internal/service"
	"ftmgraph/internal/ui"
)

func newExportCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [entities.json]",
		Short: "Export entities to per-label CSV files and load.cypher",
		Long: `Export reads entities from a source, writes one deduplicated CSV file per
node and relationship label into the output directory and generates
load.cypher, which imports them into Neo4j.

Examples:
  ftmgraph export data/entities.json -o graph/
  ftmgraph export data/entities.json.gz --schema LegalEntity --keys sqlite
  ftmgraph export --source http --source-config '{"url":"https://data.example.org/entities.json"}'
  ftmgraph export data/entities.json --load --neo4j-uri neo4j://localhost:7687
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := c.jobFromFlags(cmd.Flags(), args)
			if err != nil {
				return err
			}
			engine, err := NewEngine(c.cfg, c.log)
			if err != nil {
				return err
			}

			result, err := engine.RunExport(cmd.Context(), job)
			if err != nil {
				return err
			}
			if err := c.print(cmd, result, func(w io.Writer) error { return printResult(w, result) }); err != nil {
				return err
			}

			if load, _ := cmd.Flags().GetBool("load"); load {
				return c.runLoad(cmd, result.ScriptPath)
			}
			return nil
		},
	}
	addExportFlags(cmd.Flags())
	cmd.Flags().Bool("load", false, "run load.cypher against Neo4j after exporting")
	return cmd
}

func newLoadCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load [load.cypher]",
		Short: "Run a load script against Neo4j",
		Long: `Load executes every statement of a load script against the configured
Neo4j database. Without an argument it loads <out>/load.cypher.

The CSV files must be readable by the Neo4j server under the URL prefix
the script was generated with.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(c.cfg.Export.OutputDir, cypher.ScriptFileName)
			if len(args) == 1 {
				path = args[0]
			}
			return c.runLoad(cmd, path)
		},
	}
	cmd.Flags().StringP("out", "o", "", "export directory holding load.cypher")
	return cmd
}

func (c *cli) runLoad(cmd *cobra.Command, path string) error {
	if c.cfg.Neo4j.URI == "" {
		return fmt.Errorf("%w: set --neo4j-uri or FTMGRAPH_NEO4J_URI", service.ErrNeo4jNotConfigured)
	}
	stmts, err := cypher.ReadScriptFile(path)
	if err != nil {
		return err
	}

	loader := newGraphLoader(c.cfg.Neo4j, c.log)
	defer func() {
		if err := loader.Close(cmd.Context()); err != nil {
			c.log.Warn("close neo4j", "error", err)
		}
	}()

	c.log.Info("loading graph", "script", path, "statements", len(stmts))
	stats, err := loader.RunScript(cmd.Context(), stmts)
	if err != nil {
		return err
	}
	return c.print(cmd, stats, func(w io.Writer) error { return printLoadStats(w, stats) })
}

// jobFromFlags builds a one-shot export job from the command line.
func (c *cli) jobFromFlags(fs *pflag.FlagSet, args []string) (*etl.ExportJob, error) {
	sourceType, sourceCfg, err := sourceFromFlags(fs, args)
	if err != nil {
		return nil, err
	}
	transforms, err := transformsFromFlags(fs)
	if err != nil {
		return nil, err
	}
	return &etl.ExportJob{
		ID:         "cli",
		Name:       "export",
		SourceType: sourceType,
		SourceCfg:  sourceCfg,
		Transforms: transforms,
		Options:    c.cfg.Export,
	}, nil
}

func sourceFromFlags(fs *pflag.FlagSet, args []string) (string, etl.SourceConfig, error) {
	sourceType, _ := fs.GetString("source")
	raw, _ := fs.GetString("source-config")

	cfg := etl.SourceConfig{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return "", nil, fmt.Errorf("--source-config: %w", err)
		}
	}
	if len(args) == 1 {
		if sourceType != "ftm_file" {
			return "", nil, fmt.Errorf("an input file only applies to the ftm_file source, not %q", sourceType)
		}
		cfg["filePath"] = args[0]
	}

	src, err := etl.GetSource(sourceType)
	if err != nil {
		return "", nil, err
	}
	if err := src.Spec().Validate(cfg); err != nil {
		return "", nil, err
	}
	return sourceType, cfg, nil
}

func transformsFromFlags(fs *pflag.FlagSet) ([]etl.TransformConfig, error) {
	var ts []etl.TransformConfig
	if schemata, _ := fs.GetStringSlice("schema"); len(schemata) > 0 {
		ts = append(ts, etl.TransformConfig{Type: "schema", Config: map[string]any{"schemata": schemata}})
	}
	limit, _ := fs.GetInt("limit")
	switch {
	case limit < 0:
		return nil, fmt.Errorf("--limit must not be negative")
	case limit > 0:
		ts = append(ts, etl.TransformConfig{Type: "limit", Config: map[string]any{"count": limit}})
	}
	return ts, nil
}

// ── Output ─────────────────────────────────────────────────

func printResult(w io.Writer, r *etl.ExportResult) error {
	labels := make([]string, 0, len(r.Labels))
	for l := range r.Labels {
		labels = append(labels, l)
	}
	slices.Sort(labels)

	rows := make([][]string, 0, len(labels)+1)
	for _, l := range labels {
		rows = append(rows, []string{l, ui.Count(r.Labels[l])})
	}
	rows = append(rows, []string{"total", ui.Count(r.RowsWritten)})
	if err := ui.WriteTable(w, []string{"LABEL", "ROWS"}, rows); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%s entities read, %s filtered, %s skipped in %s\nscript: %s\n",
		ui.Count(r.EntitiesRead), ui.Count(r.EntitiesFiltered), ui.Count(r.EntitiesSkipped),
		r.Duration.Round(time.Millisecond), r.ScriptPath)
	return err
}

func printLoadStats(w io.Writer, s *neo4jdb.LoadStats) error {
	return ui.WriteTable(w, []string{"STATEMENTS", "NODES", "RELATIONSHIPS", "PROPERTIES", "DELETED", "DURATION"}, [][]string{{
		ui.Count(s.Statements),
		ui.Count(s.NodesCreated),
		ui.Count(s.RelationshipsCreated),
		ui.Count(s.PropertiesSet),
		ui.Count(s.NodesDeleted + s.RelationshipsDeleted),
		s.Duration.Round(time.Millisecond).String(),
	}})
}
