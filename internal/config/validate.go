package config

import (
	"errors"
	"fmt"
	"strings"

	"vidintel/internal/services"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateSTT(); err != nil {
		return err
	}
	if err := c.validateEmbeddings(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"events.request_timeout":        c.Events.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.ChunkMinChars > c.Ingest.ChunkMaxChars {
		return errors.New("ingest.chunk_min_chars must not exceed ingest.chunk_max_chars")
	}
	if c.Chapters.WindowMs < 0 {
		return errors.New("chapters.window_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateSTT() error {
	switch c.STT.Provider {
	case "", STTMock, STTWhisperX:
		return nil
	case STTOpenAI:
		if c.STT.APIKey == "" {
			return fmt.Errorf("%w: stt.api_key must be set when stt.provider is openai (or set OPENAI_API_KEY)", services.ErrConfiguration)
		}
		return nil
	default:
		return fmt.Errorf("%w: stt.provider %q is not supported (use mock, openai, or whisperx)", services.ErrConfiguration, c.STT.Provider)
	}
}

func (c *Config) validateEmbeddings() error {
	switch c.Embeddings.Provider {
	case EmbeddingsDisabled, EmbeddingsOllama:
	case EmbeddingsOpenAI:
		if c.Embeddings.APIKey == "" {
			return fmt.Errorf("%w: embeddings.api_key must be set when embeddings.provider is openai (or set OPENAI_API_KEY)", services.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: embeddings.provider %q is not supported (use ollama, openai, or disabled)", services.ErrConfiguration, c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions != ExpectedEmbeddingDimensions {
		return fmt.Errorf("%w: embeddings.dimensions must be %d", services.ErrConfiguration, ExpectedEmbeddingDimensions)
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	switch c.Enrichment.Provider {
	case "", EnrichmentLLM:
		return nil
	default:
		return fmt.Errorf("%w: enrichment.provider %q is not supported (use llm)", services.ErrConfiguration, c.Enrichment.Provider)
	}
}

func (c *Config) validateTransport() error {
	switch c.Transport.Backend {
	case TransportStore:
		return nil
	case TransportRedis:
		if c.Transport.RedisURL == "" {
			return errors.New("transport.redis_url must be set when transport.backend is redis")
		}
		return nil
	default:
		return fmt.Errorf("transport.backend %q is not supported (use store or redis)", c.Transport.Backend)
	}
}

func (c *Config) validateEvents() error {
	if len(c.Events.KafkaBrokers) > 0 && c.Events.KafkaTopic == "" {
		return errors.New("events.kafka_topic must be set when events.kafka_brokers is configured")
	}
	return nil
}

func (c *Config) validateArchive() error {
	switch c.Archive.Backend {
	case ArchiveNone:
		return nil
	case ArchiveFS:
		if strings.TrimSpace(c.Archive.Dir) == "" {
			return errors.New("archive.dir must be set when archive.backend is fs")
		}
		return nil
	case ArchiveMinIO:
		if c.Archive.Endpoint == "" {
			return errors.New("archive.endpoint must be set when archive.backend is minio")
		}
		if c.Archive.Bucket == "" {
			return errors.New("archive.bucket must be set when archive.backend is minio")
		}
		if c.Archive.AccessKey == "" || c.Archive.SecretKey == "" {
			return errors.New("archive.access_key and archive.secret_key must be set when archive.backend is minio (or set VIDINTEL_MINIO_SECRET_KEY)")
		}
		return nil
	default:
		return fmt.Errorf("archive.backend %q is not supported (use none, fs, or minio)", c.Archive.Backend)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
