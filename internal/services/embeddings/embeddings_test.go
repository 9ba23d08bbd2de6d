package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"vidintel/internal/config"
	"vidintel/internal/services"
)

func vector(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i) / float32(n)
	}
	return out
}

func TestOllamaEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "nomic-embed-text" || req["prompt"] != "hello" {
			t.Errorf("unexpected request %#v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vector(768)})
	}))
	defer server.Close()

	emb := NewOllama(server.URL+"/", "nomic-embed-text", 768, server.Client())
	vec, err := emb.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if err := CheckDimensions(vec, 768); err != nil {
		t.Fatalf("CheckDimensions: %v", err)
	}
	if emb.ModelID() != "nomic-embed-text" {
		t.Fatalf("model id = %q", emb.ModelID())
	}
}

func TestOpenAIEmbedSendsDimensions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" || r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["dimensions"] != float64(768) {
			t.Errorf("dimensions = %#v", req["dimensions"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{map[string]any{"embedding": vector(768)}}})
	}))
	defer server.Close()

	emb := NewOpenAI(server.URL, "sk-test", "text-embedding-3-small", 768, server.Client())
	if _, err := emb.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if emb.ModelID() != "openai:text-embedding-3-small:768" {
		t.Fatalf("model id = %q", emb.ModelID())
	}
}

func TestEmbedHTTPErrorIsExternal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewOllama(server.URL, "missing", 768, server.Client()).Embed(context.Background(), "x")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestCheckDimensionsMismatch(t *testing.T) {
	err := CheckDimensions(vector(384), 768)
	if !errors.Is(err, ErrDimensionMismatch) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestStatusFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		enabled bool
		modelID string
	}{
		{"ollama default", func(c *config.Config) {}, true, "nomic-embed-text"},
		{"disabled", func(c *config.Config) { c.Embeddings.Provider = config.EmbeddingsDisabled }, false, ""},
		{"openai without key", func(c *config.Config) {
			c.Embeddings.Provider = config.EmbeddingsOpenAI
			c.Embeddings.Model = "text-embedding-3-small"
		}, false, ""},
		{"openai", func(c *config.Config) {
			c.Embeddings.Provider = config.EmbeddingsOpenAI
			c.Embeddings.Model = "text-embedding-3-small"
			c.Embeddings.APIKey = "sk"
		}, true, "openai:text-embedding-3-small:768"},
		{"wrong width", func(c *config.Config) { c.Embeddings.Dimensions = 1536 }, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Embeddings.Model = "nomic-embed-text"
			tt.mutate(&cfg)
			status := StatusFromConfig(&cfg)
			if status.Enabled != tt.enabled || status.ModelID != tt.modelID {
				t.Fatalf("status = %#v", status)
			}
			if !tt.enabled && status.Reason == "" {
				t.Fatal("expected a reason for disabled embeddings")
			}
		})
	}
}

func TestHashText(t *testing.T) {
	if got := HashText("abc"); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("HashText = %s", got)
	}
}
