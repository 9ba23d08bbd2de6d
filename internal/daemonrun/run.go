package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"vidintel/internal/api"
	"vidintel/internal/archive"
	"vidintel/internal/config"
	"vidintel/internal/daemon"
	"vidintel/internal/deps"
	"vidintel/internal/logging"
	"vidintel/internal/notifications"
	"vidintel/internal/pipeline"
	"vidintel/internal/stage"
	"vidintel/internal/store"
	"vidintel/internal/transport"
	"vidintel/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the vidintel daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, unix.SIGINT, unix.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("vidintel-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update vidintel.log link: %v\n", err)
	}
	pidPath := filepath.Join(cfg.Paths.DataDir, "vidintel.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}

	tr, err := transport.New(signalCtx, cfg, st)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create transport: %w", err)
	}
	defer tr.Close()

	notifier := notifications.NewService(cfg)
	defer notifier.Close()

	archiver, err := archive.New(signalCtx, cfg)
	if err != nil {
		logging.WarnWithContext(signalCtx, logger, "archive backend unavailable", "archive_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check archive configuration"),
			logging.String(logging.FieldImpact, "completed jobs are not archived"),
		)
		archiver = nil
	}

	workflowManager, err := newWorkflow(cfg, st, tr, logger, notifier, archiver)
	if err != nil {
		_ = st.Close()
		return err
	}

	d, err := daemon.New(cfg, st, logger, workflowManager, api.NewJobService(st, tr))
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration, the daemon lock, and database access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("vidintel daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func newWorkflow(cfg *config.Config, st *store.Store, tr transport.Transport, logger *slog.Logger, notifier notifications.Service, archiver archive.Archiver) (*workflow.Manager, error) {
	pipelineDeps, err := pipeline.BuildDeps(cfg, st, tr, logger)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	opts := []workflow.ManagerOption{workflow.WithNotifier(notifier)}
	if archiver != nil {
		opts = append(opts, workflow.WithArchiver(archiver))
	}
	mgr := workflow.NewManager(cfg, st, tr, logger, opts...)
	RegisterHandlers(mgr, cfg, pipelineDeps)
	return mgr, nil
}

// HandlerRegistrar receives one handler per job type.
type HandlerRegistrar interface {
	Register(jobType string, handler stage.Handler)
}

// HandlerMap is a HandlerRegistrar for one-shot runs outside the daemon.
type HandlerMap map[string]stage.Handler

// Register implements HandlerRegistrar.
func (m HandlerMap) Register(jobType string, handler stage.Handler) { m[jobType] = handler }

// RegisterHandlers installs the pipeline handler for every job type workers run.
func RegisterHandlers(reg HandlerRegistrar, cfg *config.Config, pipelineDeps pipeline.Deps) {
	if reg == nil || cfg == nil {
		return
	}
	reg.Register(store.JobTypeIngestVideo, pipeline.NewIngest(cfg, pipelineDeps))
	reg.Register(store.JobTypeDetectChapters, pipeline.NewDetectChapters(cfg, pipelineDeps))
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "vidintel.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("llm_key_present", cfg.LLMConfigured()),
		logging.String("stt_provider", cfg.STT.Provider),
		logging.String("embeddings_provider", cfg.Embeddings.Provider),
		logging.String("transport", cfg.Transport.Backend),
		logging.String("archive", cfg.Archive.Backend),
	}
	for _, status := range deps.Check(cfg) {
		attrs = append(attrs, logging.Bool(strings.ToLower(strings.ReplaceAll(status.Name, " ", "_"))+"_available", status.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
