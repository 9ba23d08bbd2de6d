package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vidintel/internal/entities"
	"vidintel/internal/services"
	"vidintel/internal/services/llm"
)

type fakeCompleter struct {
	reply  string
	err    error
	model  string
	system string
	user   string
	schema llm.Schema
}

func (f *fakeCompleter) CompleteStructured(ctx context.Context, system, user string, schema llm.Schema) (string, error) {
	f.system, f.user, f.schema = system, user, schema
	return f.reply, f.err
}

func (f *fakeCompleter) Model() string { return f.model }

func sampleInput() Input {
	return Input{
		Video:      VideoInfo{ID: "v1", Provider: "youtube", ProviderVideoID: "abc", URL: "https://youtu.be/abc", Title: "Demo"},
		Transcript: TranscriptStats{Language: "en", Cues: 3, Chunks: 1, EndMs: 60_000},
		EntityCandidates: []entities.Candidate{
			{Type: "person", Surface: "Ada", Count: 2, ExamplesMs: []int64{1000}},
		},
		Chunks: []ChunkText{{StartMs: 0, EndMs: 60_000, Text: "Ada talks about engines."}},
	}
}

func TestRunSanitizesReply(t *testing.T) {
	fake := &fakeCompleter{
		model: "demo-model",
		reply: `{"entities":[{"type":"person","canonical_name":"Ada Lovelace","aliases":["Ada"]}],
		         "tags":["Engines"],
		         "chapters":[{"start_ms":0,"end_ms":90000,"title":"Intro"}]}`,
	}
	c := New(fake, "openrouter", 0)
	out, err := c.Run(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Entities) != 1 || out.Entities[0].Aliases[1] != "Ada Lovelace" {
		t.Fatalf("entities = %#v", out.Entities)
	}
	if len(out.Tags) != 1 || out.Tags[0] != "engines" {
		t.Fatalf("tags = %#v", out.Tags)
	}
	if len(out.Chapters) != 1 || out.Chapters[0].EndMs != 60_000 {
		t.Fatalf("chapters not clamped to transcript end: %#v", out.Chapters)
	}
	if fake.schema.Name != schemaName || !strings.HasPrefix(fake.system, "You are a strict JSON generator") {
		t.Fatalf("unexpected request: schema=%q system=%q", fake.schema.Name, fake.system)
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte(fake.user), &sent); err != nil {
		t.Fatalf("user payload is not JSON: %v", err)
	}
	for _, key := range []string{"video", "transcript", "entity_candidates", "chunks"} {
		if _, ok := sent[key]; !ok {
			t.Fatalf("user payload missing %q: %s", key, fake.user)
		}
	}
	if c.Source() != "cli:openrouter:demo-model" {
		t.Fatalf("source = %q", c.Source())
	}
}

func TestRunRejectsUnknownFields(t *testing.T) {
	fake := &fakeCompleter{reply: `{"entities":[],"tags":[],"chapters":[],"summary":"x"}`}
	_, err := New(fake, "", 0).Run(context.Background(), sampleInput())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunRejectsUnknownEntityType(t *testing.T) {
	fake := &fakeCompleter{reply: `{"entities":[{"type":"event","canonical_name":"Expo","aliases":[]}],"tags":[],"chapters":[]}`}
	_, err := New(fake, "", 0).Run(context.Background(), sampleInput())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunWrapsProviderFailure(t *testing.T) {
	fake := &fakeCompleter{err: errors.New("boom")}
	_, err := New(fake, "", 0).Run(context.Background(), sampleInput())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestRunWithoutClient(t *testing.T) {
	_, err := New(nil, "", 0).Run(context.Background(), sampleInput())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSourceWithoutModel(t *testing.T) {
	if got := New(&fakeCompleter{}, "", 0).Source(); got != "cli:llm" {
		t.Fatalf("source = %q", got)
	}
}

func TestRunAgainstChatEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		format, _ := req["response_format"].(map[string]any)
		if format["type"] != "json_schema" {
			t.Errorf("expected json_schema response format, got %#v", req["response_format"])
		}
		reply := "```json\n{\"entities\":[],\"tags\":[\"space\"],\"chapters\":[]}\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": reply}}}})
	}))
	defer server.Close()

	client := llm.NewClient(llm.Config{APIKey: "k", BaseURL: server.URL, Model: "m"})
	out, err := New(client, "openrouter", 0).Run(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Tags) != 1 || out.Tags[0] != "space" {
		t.Fatalf("tags = %#v", out.Tags)
	}
}
