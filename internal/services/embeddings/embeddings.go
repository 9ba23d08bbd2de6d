// Package embeddings turns chunk text into fixed-width vectors through an
// Ollama or OpenAI-compatible endpoint.
package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vidintel/internal/config"
	"vidintel/internal/services"
)

// Embedder produces one vector per text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Provider() string
	ModelID() string
	Dimensions() int
}

// Status describes whether embeddings can run and why not.
type Status struct {
	Enabled    bool   `json:"enabled"`
	Provider   string `json:"provider"`
	ModelID    string `json:"model_id,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// StatusFromConfig reports the embedder that NewFromConfig would build.
func StatusFromConfig(cfg *config.Config) Status {
	emb := cfg.Embeddings
	status := Status{Provider: emb.Provider}
	switch emb.Provider {
	case config.EmbeddingsDisabled:
		status.Reason = "embeddings disabled"
		return status
	case config.EmbeddingsOpenAI:
		if emb.APIKey == "" {
			status.Reason = "OPENAI_API_KEY not set"
			return status
		}
	case config.EmbeddingsOllama:
	default:
		status.Reason = fmt.Sprintf("unsupported embeddings provider %q", emb.Provider)
		return status
	}
	if emb.Dimensions != config.ExpectedEmbeddingDimensions {
		status.Reason = fmt.Sprintf("store expects %d-dim vectors; got dimensions=%d", config.ExpectedEmbeddingDimensions, emb.Dimensions)
		return status
	}
	status.Enabled = true
	status.ModelID = cfg.EmbeddingModelID()
	status.Dimensions = emb.Dimensions
	return status
}

// NewFromConfig builds the configured embedder or explains why none is available.
func NewFromConfig(cfg *config.Config) (Embedder, error) {
	status := StatusFromConfig(cfg)
	if !status.Enabled {
		return nil, services.Wrap(services.ErrConfiguration, "embeddings", "init", status.Reason, nil)
	}
	emb := cfg.Embeddings
	client := &http.Client{Timeout: time.Duration(emb.TimeoutSeconds) * time.Second}
	switch emb.Provider {
	case config.EmbeddingsOpenAI:
		return &OpenAI{
			baseURL:    emb.BaseURL,
			apiKey:     emb.APIKey,
			model:      emb.Model,
			modelID:    status.ModelID,
			dimensions: status.Dimensions,
			client:     client,
		}, nil
	default:
		return &Ollama{
			baseURL:    emb.BaseURL,
			model:      emb.Model,
			dimensions: status.Dimensions,
			client:     client,
		}, nil
	}
}

// HashText is the sha256 hex digest stored next to each vector.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ErrDimensionMismatch is returned by CheckDimensions.
var ErrDimensionMismatch = errors.New("embedding dimensions mismatch")

// CheckDimensions validates a vector against the expected width.
func CheckDimensions(vec []float32, expected int) error {
	if len(vec) != expected {
		return services.Wrap(services.ErrValidation, "embeddings", "check dimensions",
			fmt.Sprintf("got %d, expected %d", len(vec), expected), ErrDimensionMismatch)
	}
	return nil
}

func endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}
