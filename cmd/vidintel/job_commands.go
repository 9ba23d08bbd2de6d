package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidintel/internal/api"
	"vidintel/internal/logs"
	"vidintel/internal/queueaccess"
	"vidintel/internal/services"
	"vidintel/internal/store"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Enqueue and inspect jobs",
	}
	jobCmd.AddCommand(newJobIngestCommand(ctx))
	jobCmd.AddCommand(newJobDetectCommand(ctx))
	jobCmd.AddCommand(newJobListCommand(ctx))
	jobCmd.AddCommand(newJobShowCommand(ctx))
	jobCmd.AddCommand(newJobLogsCommand(ctx))
	jobCmd.AddCommand(newJobActionCommand(ctx, "cancel", "Cancel a queued or running job", queueaccess.Access.Cancel))
	jobCmd.AddCommand(newJobActionCommand(ctx, "retry", "Requeue a failed or canceled job", queueaccess.Access.Retry))
	jobCmd.AddCommand(newJobRunCommand(ctx))
	return jobCmd
}

func newJobIngestCommand(ctx *commandContext) *cobra.Command {
	var (
		language string
		steps    []string
		noSteps  bool
		traceID  string
	)

	cmd := &cobra.Command{
		Use:   "ingest <video-id>",
		Short: "Enqueue an ingest_video job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if noSteps && cmd.Flags().Changed("steps") {
				return errors.New("--steps and --no-steps are mutually exclusive")
			}
			req := api.CreateJobRequest{
				Type:     store.JobTypeIngestVideo,
				VideoID:  args[0],
				Language: language,
				TraceID:  traceID,
			}
			switch {
			case noSteps:
				req.Steps = &[]string{}
			case cmd.Flags().Changed("steps"):
				cleaned := make([]string, 0, len(steps))
				for _, s := range steps {
					if s = strings.TrimSpace(s); s != "" {
						cleaned = append(cleaned, s)
					}
				}
				req.Steps = &cleaned
			}
			return ctx.createJob(cmd, req)
		},
	}

	cmd.Flags().StringVar(&language, "language", "", "Transcript language (defaults to ingest.default_language)")
	cmd.Flags().StringSliceVar(&steps, "steps", nil, "Optional steps to run (comma separated)")
	cmd.Flags().BoolVar(&noSteps, "no-steps", false, "Run only the mandatory transcript stage")
	cmd.Flags().StringVar(&traceID, "trace-id", "", "Trace id carried into job logs and output")
	return cmd
}

func newJobDetectCommand(ctx *commandContext) *cobra.Command {
	var (
		force      bool
		minSignals int
		windowMs   int64
		traceID    string
	)

	cmd := &cobra.Command{
		Use:   "detect-chapters <video-id>",
		Short: "Enqueue a detect_chapters job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.CreateJobRequest{
				Type:    store.JobTypeDetectChapters,
				VideoID: args[0],
				Force:   force,
				TraceID: traceID,
			}
			if cmd.Flags().Changed("min-signals") {
				req.MinSignals = &minSignals
			}
			if cmd.Flags().Changed("window-ms") {
				req.WindowMs = &windowMs
			}
			return ctx.createJob(cmd, req)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace existing significant marks")
	cmd.Flags().IntVar(&minSignals, "min-signals", 0, "Override chapters.min_signals")
	cmd.Flags().Int64Var(&windowMs, "window-ms", 0, "Override chapters.window_ms")
	cmd.Flags().StringVar(&traceID, "trace-id", "", "Trace id carried into job logs and output")
	return cmd
}

func (c *commandContext) createJob(cmd *cobra.Command, req api.CreateJobRequest) error {
	return c.withSession(cmd, func(access queueaccess.Access) error {
		job, err := access.Create(cmd.Context(), req)
		if err != nil && job.ID == "" {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Job %s queued (%s)\n", job.ID, job.Type)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warn: job not announced to workers: %v\n", err)
		}
		return nil
	})
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(access queueaccess.Access) error {
				jobs, err := access.List(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if asJSON {
					if jobs == nil {
						jobs = []api.Job{}
					}
					return writeJSON(cmd, jobs)
				}
				printTable(cmd.OutOrStdout(), jobColumns(), jobRows(jobs), "No jobs found")
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (queued, running, completed, failed, canceled)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func jobColumns() []column {
	return []column{
		{title: "ID"},
		{title: "Type"},
		{title: "Status"},
		{title: "Progress", numeric: true},
		{title: "Attempts", numeric: true},
		{title: "Updated"},
		{title: "Error", maxWidth: 40},
	}
}

func jobRows(jobs []api.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			job.Type,
			job.Status,
			strconv.Itoa(job.Progress) + "%",
			strconv.Itoa(job.Attempts),
			shortTime(job.UpdatedAt),
			orDash(job.Error),
		})
	}
	return rows
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(access queueaccess.Access) error {
				job, err := access.Describe(cmd.Context(), args[0])
				if err != nil {
					return notFoundMessage(err, "job", args[0])
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				printJob(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printJob(out io.Writer, job api.Job) {
	fmt.Fprintf(out, "Job:        %s\n", job.ID)
	fmt.Fprintf(out, "Type:       %s\n", job.Type)
	fmt.Fprintf(out, "Status:     %s (%d%%)\n", job.Status, job.Progress)
	fmt.Fprintf(out, "Attempts:   %d\n", job.Attempts)
	fmt.Fprintf(out, "Created:    %s\n", shortTime(job.CreatedAt))
	fmt.Fprintf(out, "Started:    %s\n", shortTime(job.StartedAt))
	fmt.Fprintf(out, "Finished:   %s\n", shortTime(job.FinishedAt))
	if job.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", job.Error)
	}
	if len(job.Input) > 0 {
		fmt.Fprintf(out, "Input:      %s\n", string(job.Input))
	}
	if len(job.Output) > 0 {
		fmt.Fprintf(out, "Output:     %s\n", string(job.Output))
	}
}

func newJobLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow bool
		after  int64
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Print a job's persisted log entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(access queueaccess.Access) error {
				out := cmd.OutOrStdout()
				_, err := logs.Stream(cmd.Context(), access, args[0], logs.Options{After: after, Follow: follow}, func(entry api.JobLog) error {
					if asJSON {
						return writeJSON(cmd, entry)
					}
					fmt.Fprintln(out, formatJobLog(entry))
					return nil
				})
				return notFoundMessage(err, "job", args[0])
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling until the job finishes")
	cmd.Flags().Int64Var(&after, "after", 0, "Only entries with ids greater than this")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output entries as JSON")
	return cmd
}

func formatJobLog(entry api.JobLog) string {
	line := fmt.Sprintf("%s %-5s %s", shortTime(entry.Timestamp), strings.ToUpper(entry.Level), entry.Message)
	if len(entry.Data) > 0 && string(entry.Data) != "null" && string(entry.Data) != "{}" {
		line += " " + string(entry.Data)
	}
	return line
}

type jobAction func(queueaccess.Access, context.Context, string) (api.ActionResponse, error)

func newJobActionCommand(ctx *commandContext, use, short string, action jobAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(access queueaccess.Access) error {
				resp, err := action(access, cmd.Context(), args[0])
				if err != nil {
					return notFoundMessage(err, "job", args[0])
				}
				out := cmd.OutOrStdout()
				if resp.Changed {
					fmt.Fprintf(out, "Job %s is now %s\n", resp.JobID, resp.Status)
				} else {
					fmt.Fprintf(out, "Job %s unchanged (status %s)\n", resp.JobID, resp.Status)
				}
				return nil
			})
		},
	}
}

// notFoundMessage turns a not-found error into a short operator message.
func notFoundMessage(err error, kind, id string) error {
	if err != nil && errors.Is(err, services.ErrNotFound) {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	return err
}
