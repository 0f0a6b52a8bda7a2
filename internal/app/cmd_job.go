package app

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ftmgraph/internal/etl"
	"ftmgraph/internal/service"
	"ftmgraph/internal/ui"
)

func newJobCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage stored export jobs",
		Long: `Stored jobs keep a source, transforms and export options under a name.
They run on demand, on a cron schedule or when a watched file changes
(see 'ftmgraph serve').`,
	}
	cmd.AddCommand(
		newJobCreateCmd(c),
		newJobListCmd(c),
		newJobRunCmd(c),
		newJobLoadCmd(c),
		newJobDeleteCmd(c),
		newJobRunsCmd(c),
	)
	return cmd
}

// withApp opens the application for the duration of fn.
func (c *cli) withApp(fn func(a *App) error) error {
	a, err := c.open()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newJobCreateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create NAME [entities.json]",
		Short: "Create an export job",
		Long: `Create stores an export job. Export option flags that are not given
fall back to the configured defaults when the job runs; the output
directory defaults to <data-dir>/exports/<name>.

Examples:
  ftmgraph job create sanctions data/sanctions.json
  ftmgraph job create nightly --source http --source-config '{"url":"https://example.org/e.json"}' --trigger schedule --trigger-config @daily
  ftmgraph job create watched data/in.json --trigger file_watch --trigger-config data/in.json
`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			sourceType, sourceCfg, err := sourceFromFlags(fs, args[1:])
			if err != nil {
				return err
			}
			transforms, err := transformsFromFlags(fs)
			if err != nil {
				return err
			}
			if dedupe, _ := fs.GetBool("dedupe"); dedupe {
				transforms = append(transforms, etl.TransformConfig{Type: "dedupe"})
			}

			opts := c.cfg.Export
			opts.OutputDir = ""
			if fs.Changed("out") {
				if opts.OutputDir, err = filepath.Abs(c.cfg.Export.OutputDir); err != nil {
					return err
				}
			}
			if path, ok := sourceCfg["filePath"].(string); ok {
				if sourceCfg["filePath"], err = filepath.Abs(path); err != nil {
					return err
				}
			}

			trigger, _ := fs.GetString("trigger")
			triggerCfg, _ := fs.GetString("trigger-config")
			disabled, _ := fs.GetBool("disabled")

			return c.withApp(func(a *App) error {
				job, err := a.Exports.CreateJob(cmd.Context(), service.CreateJobInput{
					Name:          args[0],
					SourceType:    sourceType,
					SourceConfig:  sourceCfg,
					Transforms:    transforms,
					Options:       opts,
					TriggerType:   trigger,
					TriggerConfig: triggerCfg,
					Enabled:       !disabled,
				})
				if err != nil {
					return err
				}
				return c.print(cmd, job, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "created job %s (%s) writing to %s\n", job.ID, job.Name, job.Options.OutputDir)
					return err
				})
			})
		},
	}
	addExportFlags(cmd.Flags())
	cmd.Flags().Bool("dedupe", false, "drop repeated entity ids before projection")
	cmd.Flags().String("trigger", etl.TriggerManual, "manual, schedule or file_watch")
	cmd.Flags().String("trigger-config", "", "cron expression for schedule, path for file_watch")
	cmd.Flags().Bool("disabled", false, "create the job without enabling its trigger")
	return cmd
}

func newJobListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List export jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *App) error {
				jobs, err := a.Exports.ListJobs()
				if err != nil {
					return err
				}
				if jobs == nil {
					jobs = []etl.ExportJob{}
				}
				return c.print(cmd, jobs, func(w io.Writer) error {
					rows := make([][]string, 0, len(jobs))
					for _, j := range jobs {
						trigger := j.TriggerType
						if j.TriggerConfig != "" {
							trigger += " " + j.TriggerConfig
						}
						if !j.Enabled {
							trigger += " (disabled)"
						}
						rows = append(rows, []string{j.ID, j.Name, j.SourceType, trigger, ui.Status(j.LastStatus), ui.Ago(j.LastRunAt)})
					}
					return ui.WriteTable(w, []string{"ID", "NAME", "SOURCE", "TRIGGER", "STATUS", "LAST RUN"}, rows)
				})
			})
		},
	}
}

func newJobRunCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run ID",
		Short: "Run an export job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *App) error {
				result, err := a.Exports.RunJob(cmd.Context(), args[0])
				if result != nil {
					if perr := c.print(cmd, result, func(w io.Writer) error { return printResult(w, result) }); perr != nil && err == nil {
						err = perr
					}
				}
				return err
			})
		},
	}
}

func newJobLoadCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "load ID",
		Short: "Load a job's last export into Neo4j",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *App) error {
				res, err := a.Exports.LoadJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.print(cmd, res, func(w io.Writer) error { return printLoadStats(w, res.Stats) })
			})
		},
	}
}

func newJobDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an export job and its run history",
		Long:  "Delete removes the job and its run logs. Files in its output directory are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *App) error {
				if err := a.Exports.DeleteJob(cmd.Context(), args[0]); err != nil {
					return err
				}
				return c.print(cmd, map[string]string{"deleted": args[0]}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "deleted job %s\n", args[0])
					return err
				})
			})
		},
	}
}

func newJobRunsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs ID",
		Short: "Show the run history of an export job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return c.withApp(func(a *App) error {
				if _, err := a.Exports.GetJob(args[0]); err != nil {
					return err
				}
				logs, err := a.Exports.ListRunLogs(args[0], limit)
				if err != nil {
					return err
				}
				if logs == nil {
					logs = []etl.RunLog{}
				}
				return c.print(cmd, logs, func(w io.Writer) error {
					rows := make([][]string, 0, len(logs))
					for _, l := range logs {
						rows = append(rows, []string{
							l.StartedAt.Local().Format("2006-01-02 15:04:05"),
							l.FinishedAt.Sub(l.StartedAt).Round(time.Millisecond).String(),
							ui.Status(l.Status),
							ui.Count(l.EntitiesRead),
							ui.Count(l.EntitiesSkipped),
							ui.Count(l.RowsWritten),
							strconv.Itoa(l.Labels),
							truncate(l.Error, 60),
						})
					}
					return ui.WriteTable(w, []string{"STARTED", "TOOK", "STATUS", "READ", "SKIPPED", "ROWS", "LABELS", "ERROR"}, rows)
				})
			})
		},
	}
	cmd.Flags().Int("limit", 20, "number of runs to show")
	return cmd
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
