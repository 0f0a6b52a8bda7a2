package app

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ftmgraph/internal/config"
	"ftmgraph/internal/logger"
)

// Version is set at build time with -ldflags "-X ftmgraph/internal/app.Version=...".
var Version = "dev"

// cli holds the state shared by all commands of one invocation.
type cli struct {
	configPath string
	jsonOut    bool

	cfg *config.Config
	log *logger.Logger
}

// NewRootCmd builds the ftmgraph command tree.
func NewRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "ftmgraph",
		Short: "Export entity streams to Neo4j-ready CSV files and load scripts",
		Long: `ftmgraph turns a stream of entities into one deduplicated CSV file per
node or relationship label, plus a load.cypher script that imports them
into Neo4j.

Configuration comes from flags, FTMGRAPH_* environment variables and an
optional ftmgraph.yaml file, in that order of precedence.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				c.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default ./ftmgraph.yaml or <config dir>/ftmgraph/config.yaml)")
	pf.BoolVar(&c.jsonOut, "json", false, "print machine-readable JSON")
	pf.String("data-dir", "", "directory holding the job database and job outputs")
	pf.String("log-mode", "", "log format: dev or prod")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("model", "", "schema model YAML file (default built-in)")
	pf.String("neo4j-uri", "", "Neo4j bolt URI, e.g. neo4j://localhost:7687")
	pf.String("neo4j-user", "", "Neo4j user")
	pf.String("neo4j-password", "", "Neo4j password")
	pf.String("neo4j-database", "", "Neo4j database (default server default)")

	root.AddCommand(
		newExportCmd(c),
		newLoadCmd(c),
		newJobCmd(c),
		newServeCmd(c),
		newMCPCmd(c),
		newSourcesCmd(c),
	)
	return root
}

// Execute runs the command tree with ctx, which is cancelled on interrupt
// by the caller.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func (c *cli) init(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return err
	}
	c.cfg, c.log = cfg, log
	if cfg.File != "" {
		log.Debug("config loaded", "file", cfg.File)
	}
	return nil
}

// open builds the full application for commands that use the job store.
func (c *cli) open() (*App, error) {
	return Open(c.cfg, c.log)
}

// print writes v as JSON with --json, otherwise calls human.
func (c *cli) print(cmd *cobra.Command, v any, human func(io.Writer) error) error {
	out := cmd.OutOrStdout()
	if c.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return human(out)
}

// addExportFlags registers the flags that map onto export options. Their
// names match the config keys, so viper picks them up when set.
func addExportFlags(fs *pflag.FlagSet) {
	fs.StringP("out", "o", "", "output directory for CSV files and load.cypher")
	fs.String("prefix", "", "URL prefix Neo4j uses to read the CSV files (default file:///)")
	fs.Int("batch-size", 0, "rows per load transaction (default 50000)")
	fs.Int("min-identifier-length", 0, "shortest identifier value turned into a node (default 7)")
	fs.Bool("name-requires-space", true, "only turn names containing whitespace into nodes")
	fs.String("keys", "", "dedup key store: memory or sqlite")
	fs.Bool("reset", false, "make load.cypher delete the whole graph first")
	fs.StringSlice("schema", nil, "only export entities of these schemata (and their descendants)")
	fs.Int("limit", 0, "stop after this many entities")
	fs.String("source", "ftm_file", "entity source type (see 'ftmgraph sources')")
	fs.String("source-config", "", "source configuration as JSON")
}
