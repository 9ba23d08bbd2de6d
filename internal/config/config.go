package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Ingest contains per-job defaults for the ingest pipeline.
type Ingest struct {
	DefaultLanguage  string `toml:"default_language"`
	ContextAtMs      int64  `toml:"context_at_ms"`
	ContextWindowMs  int64  `toml:"context_window_ms"`
	ContextLimit     int    `toml:"context_limit"`
	PromptCharBudget int    `toml:"prompt_char_budget"`
	ChunkMaxChars    int    `toml:"chunk_max_chars"`
	ChunkMinChars    int    `toml:"chunk_min_chars"`
	ChunkOverlapCues int    `toml:"chunk_overlap_cues"`
}

// Transcript configures the best-effort caption provider.
type Transcript struct {
	PythonBin      string `toml:"python_bin"`
	Script         string `toml:"script"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// STT configures the speech-to-text fallback. An empty provider disables it.
type STT struct {
	Provider          string `toml:"provider"`
	Model             string `toml:"model"`
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	YtDLPBinary       string `toml:"ytdlp_binary"`
	WhisperXCUDA      bool   `toml:"whisperx_cuda_enabled"`
	WhisperXVADMethod string `toml:"whisperx_vad_method"`
	HFToken           string `toml:"hf_token"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// Diarization configures the speaker diarization provider. An empty backend
// disables the stage unless a job names it explicitly.
type Diarization struct {
	Backend        string   `toml:"backend"`
	Script         string   `toml:"script"`
	PythonBins     []string `toml:"python_bins"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Embeddings configures the chunk embedding provider.
type Embeddings struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Dimensions     int    `toml:"dimensions"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LLM contains shared LLM connection settings used by canonicalization and
// chapter titling.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Enrichment configures the LLM-backed canonicalization stage.
type Enrichment struct {
	Provider  string `toml:"provider"`
	TimeoutMs int    `toml:"timeout_ms"`
}

// Context configures entity context lookups.
type Context struct {
	Enabled          bool   `toml:"enabled"`
	WikipediaBaseURL string `toml:"wikipedia_base_url"`
	UserAgent        string `toml:"user_agent"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// OEmbed configures the best-effort metadata refresh.
type OEmbed struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	TimeoutMs int    `toml:"timeout_ms"`
}

// Chapters configures signal-based chapter detection defaults.
type Chapters struct {
	MinSignals  int   `toml:"min_signals"`
	WindowMs    int64 `toml:"window_ms"`
	TopicWindow int   `toml:"topic_window"`
}

// Workflow contains configuration for daemon workers and intervals.
type Workflow struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Transport selects how job deliveries reach workers.
type Transport struct {
	Backend  string `toml:"backend"`
	RedisURL string `toml:"redis_url"`
	List     string `toml:"list"`
}

// Events configures job lifecycle event publishing.
type Events struct {
	NtfyTopic      string   `toml:"ntfy_topic"`
	RequestTimeout int      `toml:"request_timeout"`
	KafkaBrokers   []string `toml:"kafka_brokers"`
	KafkaTopic     string   `toml:"kafka_topic"`
}

// Archive configures where completed job outputs are archived.
type Archive struct {
	Backend   string `toml:"backend"`
	Dir       string `toml:"dir"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vidintel.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Ingest: per-job defaults (language, context window, chunking)
//   - Transcript, STT, Diarization, Embeddings: provider selection
//   - LLM, Enrichment: canonicalization and chapter titles
//   - Context, OEmbed: best-effort metadata lookups
//   - Chapters: signal voting defaults
//   - Workflow, Transport: daemon workers and job delivery
//   - Events, Archive: lifecycle notifications and output archiving
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Ingest      Ingest      `toml:"ingest"`
	Transcript  Transcript  `toml:"transcript"`
	STT         STT         `toml:"stt"`
	Diarization Diarization `toml:"diarization"`
	Embeddings  Embeddings  `toml:"embeddings"`
	LLM         LLM         `toml:"llm"`
	Enrichment  Enrichment  `toml:"enrichment"`
	Context     Context     `toml:"context"`
	OEmbed      OEmbed      `toml:"oembed"`
	Chapters    Chapters    `toml:"chapters"`
	Workflow    Workflow    `toml:"workflow"`
	Transport   Transport   `toml:"transport"`
	Events      Events      `toml:"events"`
	Archive     Archive     `toml:"archive"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidintel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidintel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Archive.Backend == ArchiveFS {
		dirs = append(dirs, c.Archive.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the sqlite metadata store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "vidintel.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vidinteld.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains common LLM settings used across features.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the shared LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}

// LLMConfigured reports whether an API key is available for LLM calls.
func (c *Config) LLMConfigured() bool {
	return strings.TrimSpace(c.LLM.APIKey) != ""
}

// EmbeddingModelID returns the identifier stored next to each vector. OpenAI
// model ids carry the dimension so vectors from different sizes never mix.
func (c *Config) EmbeddingModelID() string {
	switch c.Embeddings.Provider {
	case EmbeddingsOpenAI:
		return fmt.Sprintf("openai:%s:%d", c.Embeddings.Model, c.Embeddings.Dimensions)
	case EmbeddingsOllama:
		return c.Embeddings.Model
	default:
		return ""
	}
}
