package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	dataDir    string
}

// setupCLITestEnv writes a config whose API bind has no listener, so every
// command runs against the database directly.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	for _, key := range []string{"OPENROUTER_API_KEY", "VIDINTEL_LLM_API_KEY", "VIDINTEL_API_TOKEN", "OPENAI_API_KEY", "VIDINTEL_REDIS_URL"} {
		t.Setenv(key, "")
	}
	base := t.TempDir()
	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		dataDir:    filepath.Join(base, "data"),
	}
	writeTestConfig(t, env.configPath, env.dataDir, filepath.Join(base, "logs"), closedAddr(t))
	return env
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func writeTestConfig(t *testing.T, path, dataDir, logDir, apiBind string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
api_bind = %q

[embeddings]
provider = "disabled"

[context]
enabled = false

[oembed]
enabled = false

[logging]
level = "error"
`, dataDir, logDir, apiBind)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, args, e.configPath)
	if err != nil {
		t.Fatalf("vidintel %s: %v (stderr: %s)", strings.Join(args, " "), err, stderr)
	}
	return out
}

func mustDecode[T any](t *testing.T, raw string) T {
	t.Helper()
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return out
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
