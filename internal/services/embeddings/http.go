package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"vidintel/internal/services"
)

// Ollama calls POST /api/embeddings.
type Ollama struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

// NewOllama builds an Ollama embedder with the given HTTP client.
func NewOllama(baseURL, model string, dimensions int, client *http.Client) *Ollama {
	if client == nil {
		client = http.DefaultClient
	}
	return &Ollama{baseURL: baseURL, model: model, dimensions: dimensions, client: client}
}

func (o *Ollama) Provider() string { return "ollama" }
func (o *Ollama) ModelID() string  { return o.model }
func (o *Ollama) Dimensions() int  { return o.dimensions }

// Embed returns the vector for text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	body := map[string]any{"model": o.model, "prompt": text}
	if err := postJSON(ctx, o.client, endpoint(o.baseURL, "/api/embeddings"), "", body, &out, "ollama"); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, services.Wrap(services.ErrValidation, "embeddings", "ollama", "response missing embedding vector", nil)
	}
	return out.Embedding, nil
}

// OpenAI calls POST /v1/embeddings with an explicit dimensions field.
type OpenAI struct {
	baseURL    string
	apiKey     string
	model      string
	modelID    string
	dimensions int
	client     *http.Client
}

// NewOpenAI builds an OpenAI-compatible embedder.
func NewOpenAI(baseURL, apiKey, model string, dimensions int, client *http.Client) *OpenAI {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAI{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		modelID:    fmt.Sprintf("openai:%s:%d", model, dimensions),
		dimensions: dimensions,
		client:     client,
	}
}

func (o *OpenAI) Provider() string { return "openai" }
func (o *OpenAI) ModelID() string  { return o.modelID }
func (o *OpenAI) Dimensions() int  { return o.dimensions }

// Embed returns the vector for text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	body := map[string]any{"model": o.model, "input": text}
	if o.dimensions > 0 {
		body["dimensions"] = o.dimensions
	}
	if err := postJSON(ctx, o.client, endpoint(o.baseURL, "/v1/embeddings"), o.apiKey, body, &out, "openai"); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, services.Wrap(services.ErrValidation, "embeddings", "openai", "response missing embedding vector", nil)
	}
	return out.Data[0].Embedding, nil
}

func postJSON(ctx context.Context, client *http.Client, url, bearer string, body, out any, op string) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return services.Wrap(services.ErrTimeout, "embeddings", op, "request timed out", err)
		}
		return services.Wrap(services.ErrExternalTool, "embeddings", op, "request failed", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg := fmt.Sprintf("http %d %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		return services.Wrap(services.ErrExternalTool, "embeddings", op, msg, nil)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return services.Wrap(services.ErrValidation, "embeddings", op, "decode response", err)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
