package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vidintel/internal/archive"
	"vidintel/internal/config"
	"vidintel/internal/daemonrun"
	"vidintel/internal/logging"
	"vidintel/internal/notifications"
	"vidintel/internal/pipeline"
	"vidintel/internal/stageexec"
	"vidintel/internal/store"
	"vidintel/internal/workflow"
)

func newJobRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job-id>",
		Short: "Execute a queued job in this process",
		Long: `Run claims a queued job and executes it in the foreground, bypassing
the daemon. The job is marked running, heartbeats are kept fresh, and the
final status is recorded exactly as a daemon worker would.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				logger, err := logging.NewFromConfig(cfg)
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}

				enq, err := dialEnqueuer(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				if enq != nil {
					defer enq.Close()
				}
				pipelineDeps, err := pipeline.BuildDeps(cfg, st, enq, logger)
				if err != nil {
					return fmt.Errorf("build pipeline: %w", err)
				}

				job, err := stageexec.Claim(cmd.Context(), st, args[0])
				if err != nil {
					return notFoundMessage(err, "job", args[0])
				}
				handlers := daemonrun.HandlerMap{}
				daemonrun.RegisterHandlers(handlers, cfg, pipelineDeps)
				handler, ok := handlers[job.Type]
				if !ok {
					_ = st.FailJob(cmd.Context(), job.ID, fmt.Sprintf("no handler for job type %s", job.Type))
					return fmt.Errorf("job %s has unsupported type %s", job.ID, job.Type)
				}

				archiver, err := archive.New(cmd.Context(), cfg)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warn: archive unavailable: %v\n", err)
					archiver = nil
				}
				notifier := notifications.NewService(cfg)
				defer notifier.Close()

				heartbeat := workflow.NewHeartbeatMonitor(st, logger,
					time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
					time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
				)

				result, err := stageexec.Run(cmd.Context(), stageexec.Options{
					Logger:    logger,
					Store:     st,
					Notifier:  notifier,
					Archiver:  archiver,
					Heartbeat: heartbeat,
					Handler:   handler,
					Job:       job,
				})
				final := result.Job
				if final == nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %s %s in %s\n", final.ID, final.Status, result.Duration.Round(time.Millisecond))
				if result.Archive != nil {
					fmt.Fprintf(out, "Archived to %s\n", result.Archive.Location)
				}
				if final.Status == store.JobFailed {
					return fmt.Errorf("job failed: %s", final.Error)
				}
				return err
			})
		},
	}
}
