package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ftmgraph/internal/etl"
	mcpserver "ftmgraph/internal/mcp"
	"ftmgraph/internal/ui"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled and file-watch export jobs until interrupted",
		Long: `Serve starts the cron schedules and file watchers of every enabled job
and runs jobs as they fire. On interrupt it stops the triggers and waits
for running jobs to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *App) error {
				ctx := cmd.Context()
				a.Exports.RestartWatchers(ctx)
				c.log.Info("serving export triggers", "data-dir", c.cfg.DataDir)
				<-ctx.Done()
				c.log.Info("shutting down")
				return nil
			})
		},
	}
}

func newMCPCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the export tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *App) error {
				srv := mcpserver.New(mcpserver.Deps{Exports: a.Exports, Log: c.log, Version: Version})
				a.Exports.SetEmitter(srv)
				if triggers, _ := cmd.Flags().GetBool("triggers"); triggers {
					a.Exports.RestartWatchers(cmd.Context())
				}
				return srv.ServeStdio()
			})
		},
	}
	cmd.Flags().Bool("triggers", false, "also run scheduled and file-watch jobs while serving")
	return cmd
}

func newSourcesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List entity source types and their configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := etl.ListSources()
			return c.print(cmd, specs, func(w io.Writer) error {
				rows := make([][]string, 0, len(specs))
				for _, s := range specs {
					fields := make([]string, 0, len(s.ConfigFields))
					for _, f := range s.ConfigFields {
						name := f.Key
						if f.Required {
							name += "*"
						}
						fields = append(fields, name)
					}
					rows = append(rows, []string{s.Type, s.Label, strings.Join(fields, ", ")})
				}
				if err := ui.WriteTable(w, []string{"TYPE", "DESCRIPTION", "CONFIG"}, rows); err != nil {
					return err
				}
				_, err := fmt.Fprintln(w, "* required")
				return err
			})
		},
	}
}
