package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIngest()
	c.normalizeTranscript()
	c.normalizeSTT()
	c.normalizeDiarization()
	c.normalizeEmbeddings()
	c.normalizeLLM()
	c.normalizeEnrichment()
	c.normalizeContext()
	c.normalizeChapters()
	c.normalizeTransport()
	c.normalizeEvents()
	if err := c.normalizeArchive(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = lookupEnv("VIDINTEL_API_TOKEN")
	}
	return nil
}

func (c *Config) normalizeIngest() {
	c.Ingest.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.Ingest.DefaultLanguage))
	if c.Ingest.DefaultLanguage == "" {
		c.Ingest.DefaultLanguage = defaultLanguage
	}
	if c.Ingest.ContextAtMs < 0 {
		c.Ingest.ContextAtMs = 0
	}
	if c.Ingest.ContextWindowMs <= 0 {
		c.Ingest.ContextWindowMs = defaultContextWindowMs
	}
	if c.Ingest.ContextLimit <= 0 {
		c.Ingest.ContextLimit = defaultContextLimit
	}
	if c.Ingest.PromptCharBudget <= 0 {
		c.Ingest.PromptCharBudget = defaultPromptCharBudget
	}
	if c.Ingest.ChunkMaxChars <= 0 {
		c.Ingest.ChunkMaxChars = defaultChunkMaxChars
	}
	if c.Ingest.ChunkMinChars <= 0 {
		c.Ingest.ChunkMinChars = defaultChunkMinChars
	}
	if c.Ingest.ChunkOverlapCues < 0 {
		c.Ingest.ChunkOverlapCues = 0
	}
}

func (c *Config) normalizeTranscript() {
	c.Transcript.PythonBin = strings.TrimSpace(c.Transcript.PythonBin)
	if c.Transcript.PythonBin == "" {
		c.Transcript.PythonBin = defaultPythonBin
	}
	c.Transcript.Script = strings.TrimSpace(c.Transcript.Script)
	if c.Transcript.Script == "" {
		c.Transcript.Script = defaultTranscriptScript
	}
	if c.Transcript.TimeoutSeconds <= 0 {
		c.Transcript.TimeoutSeconds = defaultTranscriptTimeout
	}
}

func (c *Config) normalizeSTT() {
	c.STT.Provider = strings.ToLower(strings.TrimSpace(c.STT.Provider))
	c.STT.Model = strings.TrimSpace(c.STT.Model)
	c.STT.BaseURL = strings.TrimRight(strings.TrimSpace(c.STT.BaseURL), "/")
	c.STT.APIKey = strings.TrimSpace(c.STT.APIKey)
	if c.STT.Provider == STTOpenAI {
		if c.STT.Model == "" {
			c.STT.Model = defaultOpenAISTTModel
		}
		if c.STT.BaseURL == "" {
			c.STT.BaseURL = defaultOpenAIBaseURL
		}
		if c.STT.APIKey == "" {
			c.STT.APIKey = lookupEnv("OPENAI_API_KEY")
		}
	}
	c.STT.YtDLPBinary = strings.TrimSpace(c.STT.YtDLPBinary)
	if c.STT.YtDLPBinary == "" {
		c.STT.YtDLPBinary = defaultYtDLPBinary
	}
	c.STT.WhisperXVADMethod = strings.ToLower(strings.TrimSpace(c.STT.WhisperXVADMethod))
	if c.STT.WhisperXVADMethod == "" {
		c.STT.WhisperXVADMethod = "silero"
	}
	c.STT.HFToken = strings.TrimSpace(c.STT.HFToken)
	if c.STT.HFToken == "" {
		if value := lookupEnv("HUGGING_FACE_HUB_TOKEN"); value != "" {
			c.STT.HFToken = value
		} else {
			c.STT.HFToken = lookupEnv("HF_TOKEN")
		}
	}
	if c.STT.TimeoutSeconds <= 0 {
		c.STT.TimeoutSeconds = defaultSTTTimeout
	}
}

func (c *Config) normalizeDiarization() {
	c.Diarization.Backend = strings.ToLower(strings.TrimSpace(c.Diarization.Backend))
	c.Diarization.Script = strings.TrimSpace(c.Diarization.Script)
	if c.Diarization.Script == "" {
		c.Diarization.Script = defaultDiarizeScript
	}
	bins := make([]string, 0, len(c.Diarization.PythonBins))
	seen := make(map[string]struct{}, len(c.Diarization.PythonBins))
	for _, bin := range c.Diarization.PythonBins {
		bin = strings.TrimSpace(bin)
		if bin == "" {
			continue
		}
		if _, exists := seen[bin]; exists {
			continue
		}
		seen[bin] = struct{}{}
		bins = append(bins, bin)
	}
	if len(bins) == 0 {
		bins = append(bins, defaultPythonBins...)
	}
	c.Diarization.PythonBins = bins
	if c.Diarization.TimeoutSeconds <= 0 {
		c.Diarization.TimeoutSeconds = defaultDiarizeTimeout
	}
}

func (c *Config) normalizeEmbeddings() {
	c.Embeddings.Provider = strings.ToLower(strings.TrimSpace(c.Embeddings.Provider))
	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = EmbeddingsOllama
	}
	c.Embeddings.Model = strings.TrimSpace(c.Embeddings.Model)
	c.Embeddings.BaseURL = strings.TrimRight(strings.TrimSpace(c.Embeddings.BaseURL), "/")
	c.Embeddings.APIKey = strings.TrimSpace(c.Embeddings.APIKey)
	switch c.Embeddings.Provider {
	case EmbeddingsOllama:
		if c.Embeddings.Model == "" {
			c.Embeddings.Model = defaultOllamaEmbedModel
		}
		if c.Embeddings.BaseURL == "" {
			c.Embeddings.BaseURL = defaultOllamaBaseURL
		}
	case EmbeddingsOpenAI:
		if c.Embeddings.Model == "" {
			c.Embeddings.Model = defaultOpenAIEmbedModel
		}
		if c.Embeddings.BaseURL == "" {
			c.Embeddings.BaseURL = defaultOpenAIBaseURL
		}
		if c.Embeddings.APIKey == "" {
			c.Embeddings.APIKey = lookupEnv("OPENAI_API_KEY")
		}
	}
	if c.Embeddings.Dimensions == 0 {
		c.Embeddings.Dimensions = ExpectedEmbeddingDimensions
	}
	if c.Embeddings.TimeoutSeconds <= 0 {
		c.Embeddings.TimeoutSeconds = defaultEmbeddingsTimeout
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value := lookupEnv("VIDINTEL_LLM_API_KEY"); value != "" {
			c.LLM.APIKey = value
		} else {
			c.LLM.APIKey = lookupEnv("OPENROUTER_API_KEY")
		}
	}
}

func (c *Config) normalizeEnrichment() {
	c.Enrichment.Provider = strings.ToLower(strings.TrimSpace(c.Enrichment.Provider))
	if c.Enrichment.TimeoutMs <= 0 {
		c.Enrichment.TimeoutMs = defaultEnrichmentTimeoutMs
	}
	if c.Enrichment.TimeoutMs < minEnrichmentTimeoutMs {
		c.Enrichment.TimeoutMs = minEnrichmentTimeoutMs
	}
}

func (c *Config) normalizeContext() {
	c.Context.WikipediaBaseURL = strings.TrimSpace(c.Context.WikipediaBaseURL)
	if c.Context.WikipediaBaseURL == "" {
		c.Context.WikipediaBaseURL = defaultWikipediaBaseURL
	}
	if !strings.HasSuffix(c.Context.WikipediaBaseURL, "/") {
		c.Context.WikipediaBaseURL += "/"
	}
	c.Context.UserAgent = strings.TrimSpace(c.Context.UserAgent)
	if c.Context.UserAgent == "" {
		c.Context.UserAgent = defaultUserAgent
	}
	if c.Context.TimeoutSeconds <= 0 {
		c.Context.TimeoutSeconds = defaultContextTimeout
	}
	c.OEmbed.Endpoint = strings.TrimSpace(c.OEmbed.Endpoint)
	if c.OEmbed.Endpoint == "" {
		c.OEmbed.Endpoint = defaultOEmbedEndpoint
	}
	if c.OEmbed.TimeoutMs < 250 {
		c.OEmbed.TimeoutMs = 250
	}
}

func (c *Config) normalizeChapters() {
	if c.Chapters.MinSignals <= 0 {
		c.Chapters.MinSignals = defaultChapterMinSignals
	}
	if c.Chapters.WindowMs < 0 {
		c.Chapters.WindowMs = defaultChapterWindowMs
	}
	if c.Chapters.TopicWindow <= 0 {
		c.Chapters.TopicWindow = defaultChapterTopicWindow
	}
}

func (c *Config) normalizeTransport() {
	c.Transport.Backend = strings.ToLower(strings.TrimSpace(c.Transport.Backend))
	if c.Transport.Backend == "" {
		c.Transport.Backend = TransportStore
	}
	c.Transport.RedisURL = strings.TrimSpace(c.Transport.RedisURL)
	if c.Transport.RedisURL == "" {
		c.Transport.RedisURL = lookupEnv("VIDINTEL_REDIS_URL")
	}
	c.Transport.List = strings.TrimSpace(c.Transport.List)
	if c.Transport.List == "" {
		c.Transport.List = defaultRedisList
	}
}

func (c *Config) normalizeEvents() {
	c.Events.NtfyTopic = strings.TrimSpace(c.Events.NtfyTopic)
	if c.Events.RequestTimeout <= 0 {
		c.Events.RequestTimeout = defaultEventsRequestTimeout
	}
	brokers := make([]string, 0, len(c.Events.KafkaBrokers))
	for _, broker := range c.Events.KafkaBrokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	c.Events.KafkaBrokers = brokers
	c.Events.KafkaTopic = strings.TrimSpace(c.Events.KafkaTopic)
}

func (c *Config) normalizeArchive() error {
	c.Archive.Backend = strings.ToLower(strings.TrimSpace(c.Archive.Backend))
	if c.Archive.Backend == "" {
		c.Archive.Backend = ArchiveNone
	}
	if strings.TrimSpace(c.Archive.Dir) == "" {
		c.Archive.Dir = defaultArchiveDir
	}
	var err error
	if c.Archive.Dir, err = expandPath(c.Archive.Dir); err != nil {
		return fmt.Errorf("archive.dir: %w", err)
	}
	c.Archive.Endpoint = strings.TrimSpace(c.Archive.Endpoint)
	c.Archive.AccessKey = strings.TrimSpace(c.Archive.AccessKey)
	c.Archive.SecretKey = strings.TrimSpace(c.Archive.SecretKey)
	if c.Archive.SecretKey == "" {
		c.Archive.SecretKey = lookupEnv("VIDINTEL_MINIO_SECRET_KEY")
	}
	c.Archive.Bucket = strings.TrimSpace(c.Archive.Bucket)
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
