package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidintel/internal/daemonrun"
	"vidintel/internal/pipeline"
	"vidintel/internal/store"
	"vidintel/internal/testsupport"
)

func TestRegisterHandlers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	pipelineDeps, err := pipeline.BuildDeps(cfg, st, nil, nil)
	if err != nil {
		t.Fatalf("BuildDeps: %v", err)
	}

	handlers := daemonrun.HandlerMap{}
	daemonrun.RegisterHandlers(handlers, cfg, pipelineDeps)
	for _, jobType := range []string{store.JobTypeIngestVideo, store.JobTypeDetectChapters} {
		if handlers[jobType] == nil {
			t.Fatalf("no handler registered for %s", jobType)
		}
	}
	if len(handlers) != 2 {
		t.Fatalf("registered %d handlers, want 2", len(handlers))
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[paths]\ndata_dir = \"" + filepath.Join(dir, "data") + "\"\nlog_dir = \"" + filepath.Join(dir, "logs") + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Paths.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("data dir = %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.APIBind == "" {
		t.Fatal("expected default api bind")
	}
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[paths\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadConfig(path); err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"config", "log-level", "dev"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing --%s flag", name)
		}
	}
}
