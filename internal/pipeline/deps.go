package pipeline

import (
	"context"
	"log/slog"
	"time"

	"vidintel/internal/chapters"
	"vidintel/internal/config"
	"vidintel/internal/diarization"
	"vidintel/internal/enrich"
	"vidintel/internal/entities"
	"vidintel/internal/logging"
	"vidintel/internal/services/embeddings"
	"vidintel/internal/services/llm"
	"vidintel/internal/services/stt"
	"vidintel/internal/services/wikipedia"
	"vidintel/internal/services/youtube"
	"vidintel/internal/store"
	"vidintel/internal/transcript"
)

// Enqueuer announces a persisted queued job to the workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// MetadataFetcher refreshes video metadata; nil results are ignored.
type MetadataFetcher interface {
	Fetch(ctx context.Context, videoURL string) *youtube.Metadata
}

// ContextLookup resolves an entity name to an encyclopedia summary. A nil
// summary without error means no page exists.
type ContextLookup interface {
	Summary(ctx context.Context, title string) (*wikipedia.Summary, error)
}

// Canonicalizer proposes canonical entities, tags and chapters.
type Canonicalizer interface {
	Run(ctx context.Context, in enrich.Input) (enrich.Output, error)
	Provider() string
	Model() string
	Source() string
}

// Deps are the collaborators shared by the handlers. Optional collaborators
// are nil when their feature is not configured.
type Deps struct {
	Store         *store.Store
	Transcripts   *transcript.Engine
	Diarizer      diarization.Provider
	Embedder      embeddings.Embedder
	EmbedStatus   embeddings.Status
	Extractor     entities.Extractor
	Canonicalizer Canonicalizer
	OEmbed        MetadataFetcher
	Wikipedia     ContextLookup
	Titles        chapters.TitleFunc
	Enqueuer      Enqueuer
	Logger        *slog.Logger
}

// BuildDeps wires the production collaborators from configuration.
func BuildDeps(cfg *config.Config, st *store.Store, enqueuer Enqueuer, logger *slog.Logger) (Deps, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	sttBackend, sttName, err := stt.NewFromConfig(cfg)
	if err != nil {
		return Deps{}, err
	}
	captions := transcript.NewCommandProvider(
		cfg.Transcript.PythonBin,
		cfg.Transcript.Script,
		time.Duration(cfg.Transcript.TimeoutSeconds)*time.Second,
	)

	deps := Deps{
		Store:       st,
		Transcripts: transcript.NewEngine(captions, sttBackend, sttName),
		Diarizer: diarization.NewCommandProvider(
			cfg.Diarization.Script,
			cfg.Diarization.PythonBins,
			time.Duration(cfg.Diarization.TimeoutSeconds)*time.Second,
		),
		EmbedStatus: embeddings.StatusFromConfig(cfg),
		Extractor:   entities.NewProseExtractor(),
		Enqueuer:    enqueuer,
		Logger:      logger,
	}

	if deps.EmbedStatus.Enabled {
		embedder, err := embeddings.NewFromConfig(cfg)
		if err != nil {
			return Deps{}, err
		}
		deps.Embedder = embedder
	}

	if cfg.LLMConfigured() {
		llmCfg := cfg.GetLLM()
		client := llm.NewClient(llm.Config{
			APIKey:         llmCfg.APIKey,
			BaseURL:        llmCfg.BaseURL,
			Model:          llmCfg.Model,
			Referer:        llmCfg.Referer,
			Title:          llmCfg.Title,
			TimeoutSeconds: llmCfg.TimeoutSeconds,
		})
		deps.Canonicalizer = enrich.New(client, cfg.Enrichment.Provider, time.Duration(cfg.Enrichment.TimeoutMs)*time.Millisecond)
		deps.Titles = client.CompleteText
	}

	if cfg.OEmbed.Enabled {
		deps.OEmbed = youtube.NewOEmbedClient(cfg.OEmbed.Endpoint, time.Duration(cfg.OEmbed.TimeoutMs)*time.Millisecond, nil)
	}

	if cfg.Context.Enabled {
		timeout := time.Duration(cfg.Context.TimeoutSeconds) * time.Second
		deps.Wikipedia = wikipedia.NewClient(cfg.Context.WikipediaBaseURL, cfg.Context.UserAgent, timeout, nil)
	}

	return deps, nil
}
