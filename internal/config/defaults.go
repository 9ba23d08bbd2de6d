package config

// Provider and backend names accepted in configuration.
const (
	STTMock     = "mock"
	STTOpenAI   = "openai"
	STTWhisperX = "whisperx"

	EmbeddingsOllama   = "ollama"
	EmbeddingsOpenAI   = "openai"
	EmbeddingsDisabled = "disabled"

	EnrichmentLLM = "llm"

	TransportStore = "store"
	TransportRedis = "redis"

	ArchiveNone  = "none"
	ArchiveFS    = "fs"
	ArchiveMinIO = "minio"

	DefaultDiarizationBackend = "pyannote"

	// ExpectedEmbeddingDimensions is the vector width the store accepts.
	ExpectedEmbeddingDimensions = 768
)

const (
	defaultDataDir              = "~/.local/share/vidintel"
	defaultLogDir               = "~/.local/share/vidintel/logs"
	defaultArchiveDir           = "~/.local/share/vidintel/archive"
	defaultAPIBind              = "127.0.0.1:7488"
	defaultLanguage             = "en"
	defaultContextAtMs          = 60_000
	defaultContextWindowMs      = 120_000
	defaultContextLimit         = 20
	defaultPromptCharBudget     = 80_000
	defaultChunkMaxChars        = 1800
	defaultChunkMinChars        = 400
	defaultChunkOverlapCues     = 1
	defaultPythonBin            = "python3"
	defaultTranscriptScript     = "python/fetch_transcript.py"
	defaultDiarizeScript        = "python/diarize.py"
	defaultTranscriptTimeout    = 120
	defaultSTTTimeout           = 600
	defaultDiarizeTimeout       = 1800
	defaultOpenAIBaseURL        = "https://api.openai.com"
	defaultOpenAISTTModel       = "whisper-1"
	defaultYtDLPBinary          = "yt-dlp"
	defaultOllamaBaseURL        = "http://127.0.0.1:11434"
	defaultOllamaEmbedModel     = "nomic-embed-text"
	defaultOpenAIEmbedModel     = "text-embedding-3-small"
	defaultEmbeddingsTimeout    = 30
	defaultLLMBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel             = "google/gemini-3-flash-preview"
	defaultLLMReferer           = "https://github.com/vidintel/vidintel"
	defaultLLMTitle             = "vidintel"
	defaultLLMTimeoutSeconds    = 60
	defaultEnrichmentTimeoutMs  = 180_000
	minEnrichmentTimeoutMs      = 1000
	defaultWikipediaBaseURL     = "https://en.wikipedia.org/api/rest_v1/page/summary/"
	defaultUserAgent            = "vidintel/0.1 (local)"
	defaultContextTimeout       = 10
	defaultOEmbedEndpoint       = "https://www.youtube.com/oembed"
	defaultOEmbedTimeoutMs      = 2000
	defaultChapterMinSignals    = 2
	defaultChapterWindowMs      = 3000
	defaultChapterTopicWindow   = 10
	defaultWorkers              = 2
	defaultQueuePollInterval    = 5
	defaultErrorRetryInterval   = 10
	defaultHeartbeatInterval    = 15
	defaultHeartbeatTimeout     = 120
	defaultRedisList            = "vidintel:jobs"
	defaultEventsRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

var defaultPythonBins = []string{"python3.11", "python3.12", "python3"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Ingest: Ingest{
			DefaultLanguage:  defaultLanguage,
			ContextAtMs:      defaultContextAtMs,
			ContextWindowMs:  defaultContextWindowMs,
			ContextLimit:     defaultContextLimit,
			PromptCharBudget: defaultPromptCharBudget,
			ChunkMaxChars:    defaultChunkMaxChars,
			ChunkMinChars:    defaultChunkMinChars,
			ChunkOverlapCues: defaultChunkOverlapCues,
		},
		Transcript: Transcript{
			PythonBin:      defaultPythonBin,
			Script:         defaultTranscriptScript,
			TimeoutSeconds: defaultTranscriptTimeout,
		},
		STT: STT{
			YtDLPBinary:       defaultYtDLPBinary,
			WhisperXVADMethod: "silero",
			TimeoutSeconds:    defaultSTTTimeout,
		},
		Diarization: Diarization{
			Script:         defaultDiarizeScript,
			PythonBins:     append([]string(nil), defaultPythonBins...),
			TimeoutSeconds: defaultDiarizeTimeout,
		},
		Embeddings: Embeddings{
			Provider:       EmbeddingsOllama,
			Dimensions:     ExpectedEmbeddingDimensions,
			TimeoutSeconds: defaultEmbeddingsTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Enrichment: Enrichment{
			TimeoutMs: defaultEnrichmentTimeoutMs,
		},
		Context: Context{
			Enabled:          true,
			WikipediaBaseURL: defaultWikipediaBaseURL,
			UserAgent:        defaultUserAgent,
			TimeoutSeconds:   defaultContextTimeout,
		},
		OEmbed: OEmbed{
			Enabled:   true,
			Endpoint:  defaultOEmbedEndpoint,
			TimeoutMs: defaultOEmbedTimeoutMs,
		},
		Chapters: Chapters{
			MinSignals:  defaultChapterMinSignals,
			WindowMs:    defaultChapterWindowMs,
			TopicWindow: defaultChapterTopicWindow,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Transport: Transport{
			Backend: TransportStore,
			List:    defaultRedisList,
		},
		Events: Events{
			RequestTimeout: defaultEventsRequestTimeout,
		},
		Archive: Archive{
			Backend: ArchiveNone,
			Dir:     defaultArchiveDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
