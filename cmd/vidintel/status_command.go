package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidintel/internal/api"
	"vidintel/internal/config"
	"vidintel/internal/deps"
	"vidintel/internal/preflight"
	"vidintel/internal/queueaccess"
	"vidintel/internal/store"
)

// statusOrder is the display order for job counts.
var statusOrder = []store.JobStatus{
	store.JobQueued,
	store.JobRunning,
	store.JobCompleted,
	store.JobFailed,
	store.JobCanceled,
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			daemonStatus, running := probeDaemon(cmd.Context(), cfg)

			var stats map[string]int
			if err := ctx.withSession(cmd, func(access queueaccess.Access) error {
				stats, err = access.Stats(cmd.Context())
				return err
			}); err != nil {
				return err
			}

			if asJSON {
				if !running {
					daemonStatus = api.DaemonStatus{
						DatabasePath: cfg.DatabasePath(),
						LockFilePath: cfg.LockPath(),
						Dependencies: dependencyStatuses(cfg),
					}
				}
				daemonStatus.Workflow.JobStats = stats
				return writeJSON(cmd, daemonStatus)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := []string{renderStatusLine("Config", statusInfo, orDash(ctx.configPath), colorize)}
			lines = append(lines, daemonLines(cfg, daemonStatus, running, colorize)...)
			printSection(out, "Daemon", lines, colorize)

			depList := daemonStatus.Dependencies
			if !running {
				depList = dependencyStatuses(cfg)
			}
			printSection(out, "Dependencies", dependencyLines(depList, colorize), colorize)
			printSection(out, "Preflight", preflightLines(cmd.Context(), cfg, colorize), colorize)

			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(out, line)
			}
			printTable(out, []column{{title: "Status"}, {title: "Count", numeric: true}}, jobStatRows(stats), "No jobs")
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func probeDaemon(ctx context.Context, cfg *config.Config) (api.DaemonStatus, bool) {
	remote, err := queueaccess.NewHTTPAccess(cfg.Paths.APIBind, cfg.Paths.APIToken)
	if err != nil {
		return api.DaemonStatus{}, false
	}
	status, err := remote.Status(ctx)
	if err != nil {
		return api.DaemonStatus{}, false
	}
	return status, true
}

func daemonLines(cfg *config.Config, status api.DaemonStatus, running bool, colorize bool) []string {
	if !running {
		return []string{
			renderStatusLine("Daemon", statusWarn, "Not running (commands use the database directly)", colorize),
			renderStatusLine("Database", statusInfo, cfg.DatabasePath(), colorize),
		}
	}
	wf := status.Workflow
	lines := []string{
		renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d, %s)", status.PID, cfg.Paths.APIBind), colorize),
		renderStatusLine("Workers", readiness(wf.Running, false), fmt.Sprintf("%d via %s", wf.Workers, wf.Transport), colorize),
		renderStatusLine("Active jobs", statusInfo, strconv.Itoa(len(wf.ActiveJobs)), colorize),
		renderStatusLine("API token", statusInfo, yesNo(strings.TrimSpace(cfg.Paths.APIToken) != ""), colorize),
	}
	for _, h := range wf.StageHealth {
		detail := "Ready"
		if h.Detail != "" {
			detail = h.Detail
		}
		lines = append(lines, renderStatusLine(h.Name, readiness(h.Ready, false), detail, colorize))
	}
	if wf.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, wf.LastError, colorize))
	}
	return lines
}

func dependencyStatuses(cfg *config.Config) []api.DependencyStatus {
	checked := deps.Check(cfg)
	out := make([]api.DependencyStatus, len(checked))
	for i, dep := range checked {
		out[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

func preflightLines(ctx context.Context, cfg *config.Config, colorize bool) []string {
	results := preflight.RunAll(ctx, cfg)
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, renderStatusLine(r.Name, readiness(r.Passed, false), r.Detail, colorize))
	}
	return lines
}

func jobStatRows(stats map[string]int) [][]string {
	var rows [][]string
	seen := make(map[string]bool, len(statusOrder))
	for _, status := range statusOrder {
		key := string(status)
		seen[key] = true
		if stats[key] > 0 {
			rows = append(rows, []string{titleCase(key), strconv.Itoa(stats[key])})
		}
	}
	var extra []string
	for key, count := range stats {
		if !seen[key] && count > 0 {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		rows = append(rows, []string{titleCase(key), strconv.Itoa(stats[key])})
	}
	return rows
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
