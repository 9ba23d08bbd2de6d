package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"vidintel/internal/config"
	"vidintel/internal/logging"
	"vidintel/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon started")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "vidintel.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "daemon started") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerFormatsSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "0123456789abcdef")
	ctx = services.WithStage(ctx, "diarize")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "pipeline")).Info("Diarization stored", logging.Int("speakers", 2))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"INFO [pipeline]", "job 01234567 (diarize)", "Diarization stored", "speakers=2"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", line)
	}
}

func TestJSONLoggerUsesLowercaseLevels(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("Embeddings skipped")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(content, &payload); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if payload["level"] != "warn" || payload["msg"] != "Embeddings skipped" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key: %v", payload)
	}
	if _, ok := payload["source"]; !ok {
		t.Fatalf("expected source at debug level: %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

type memorySink struct {
	mu      sync.Mutex
	entries []logging.JobLogEntry
}

func (m *memorySink) AppendJobLog(_ context.Context, entry logging.JobLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func TestWithJobLogPersistsEntries(t *testing.T) {
	sink := &memorySink{}
	logger := logging.WithJobLog(logging.NewNop(), sink, "job-1")
	logger = logging.NewComponentLogger(logger, "pipeline").With(logging.String(logging.FieldJobID, "job-1"))

	logger.Debug("dropped below info")
	logger.Info("Embeddings stored", logging.Int("count", 4), logging.String("model_id", "nomic-embed-text"))
	logging.WarnWithContext(context.Background(), logger, "Diarization failed (skipping)", "stage_failed",
		logging.ErrorDetails(services.Wrap(services.ErrExternalTool, "diarize", "run", "python failed", errors.New("exit 1")))...)

	if len(sink.entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(sink.entries))
	}
	first := sink.entries[0]
	if first.JobID != "job-1" || first.Level != "info" || first.Message != "Embeddings stored" {
		t.Fatalf("unexpected first entry: %+v", first)
	}
	if first.Data["count"] != int64(4) || first.Data["model_id"] != "nomic-embed-text" {
		t.Fatalf("unexpected data: %v", first.Data)
	}
	if _, ok := first.Data[logging.FieldComponent]; ok {
		t.Fatalf("component should be omitted from job log data: %v", first.Data)
	}
	second := sink.entries[1]
	if second.Level != "warn" {
		t.Fatalf("unexpected level: %q", second.Level)
	}
	if second.Data[logging.FieldErrorKind] != "external" || second.Data[logging.FieldEventType] != "stage_failed" {
		t.Fatalf("unexpected warning data: %v", second.Data)
	}
}

func TestNewJobLogHandlerWithoutSink(t *testing.T) {
	if _, ok := logging.NewJobLogHandler(nil, "job", 0).(logging.NoopHandler); !ok {
		t.Fatal("expected noop handler without sink")
	}
}
