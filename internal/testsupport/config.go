package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidintel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Network-backed stages (embeddings, context, oEmbed) start disabled so tests
// only reach servers they stand up themselves.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Archive.Dir = filepath.Join(base, "archive")
	cfgVal.Embeddings.Provider = config.EmbeddingsDisabled
	cfgVal.Context.Enabled = false
	cfgVal.OEmbed.Enabled = false
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1
	cfgVal.Workflow.HeartbeatInterval = 1
	cfgVal.Workflow.HeartbeatTimeout = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLLM points the shared LLM client at baseURL with a test key.
func WithLLM(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.APIKey = "test"
		b.cfg.LLM.BaseURL = baseURL
	}
}

// WithEmbeddings enables an embeddings provider against baseURL.
func WithEmbeddings(provider, baseURL, model string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Embeddings.Provider = provider
		b.cfg.Embeddings.BaseURL = baseURL
		b.cfg.Embeddings.Model = model
		if provider == config.EmbeddingsOpenAI {
			b.cfg.Embeddings.APIKey = "test"
		}
	}
}

// WithContext enables Wikipedia lookups against baseURL.
func WithContext(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Context.Enabled = true
		b.cfg.Context.WikipediaBaseURL = baseURL
	}
}

// WithSTT selects a speech-to-text provider.
func WithSTT(provider string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.STT.Provider = provider
	}
}

// WithWorkers overrides the worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = n
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, python3 and yt-dlp are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"python3", "yt-dlp"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, filepath.Join(binDir, name), "exit 0\n")
		}
		PrependPath(b.t, binDir)
	}
}

// PrependPath puts dir first on PATH for the duration of the test.
func PrependPath(t testing.TB, dir string) {
	t.Helper()
	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
