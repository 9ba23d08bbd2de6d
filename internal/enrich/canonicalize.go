package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"vidintel/internal/entities"
	"vidintel/internal/services"
	"vidintel/internal/services/llm"
)

const (
	stageName      = "enrich_cli"
	defaultTimeout = 180 * time.Second
	minTimeout     = time.Second
)

// Completer is the subset of the LLM client used for canonicalization.
type Completer interface {
	CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, schema llm.Schema) (string, error)
	Model() string
}

// Canonicalizer runs one structured canonicalization request per video.
type Canonicalizer struct {
	client   Completer
	provider string
	timeout  time.Duration
}

// New builds a Canonicalizer. A zero timeout means three minutes; shorter
// positive timeouts are raised to one second.
func New(client Completer, provider string, timeout time.Duration) *Canonicalizer {
	switch {
	case timeout <= 0:
		timeout = defaultTimeout
	case timeout < minTimeout:
		timeout = minTimeout
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		provider = "llm"
	}
	return &Canonicalizer{client: client, provider: provider, timeout: timeout}
}

// Provider returns the provider label.
func (c *Canonicalizer) Provider() string { return c.provider }

// Model returns the model label, possibly empty.
func (c *Canonicalizer) Model() string {
	if c.client == nil {
		return ""
	}
	return strings.TrimSpace(c.client.Model())
}

// Source labels persisted tags and chapters: cli:<provider>[:<model>].
func (c *Canonicalizer) Source() string {
	source := "cli:" + c.provider
	if model := c.Model(); model != "" {
		source += ":" + model
	}
	return source
}

// Run sends in to the model and returns the sanitized reply. Errors are
// classified with services markers; callers treat them as non-fatal.
func (c *Canonicalizer) Run(ctx context.Context, in Input) (Output, error) {
	if c.client == nil {
		return Output{}, services.Wrap(services.ErrConfiguration, stageName, "canonicalize", "LLM client not configured", nil)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return Output{}, services.Wrap(services.ErrValidation, stageName, "encode input", "Failed to encode enrichment input", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content, err := c.client.CompleteStructured(callCtx, SystemPrompt(), string(payload), Schema())
	if err != nil {
		if ctx.Err() != nil {
			return Output{}, services.Wrap(services.ErrCanceled, stageName, "canonicalize", "Enrichment canceled", ctx.Err())
		}
		if callCtx.Err() != nil {
			return Output{}, services.Wrap(services.ErrTimeout, stageName, "canonicalize", fmt.Sprintf("Enrichment timed out after %s", c.timeout), err)
		}
		return Output{}, services.Wrap(services.ErrExternalTool, stageName, "canonicalize", "Enrichment request failed", err)
	}

	var raw Output
	if err := llm.DecodeStrict(content, &raw); err != nil {
		return Output{}, services.Wrap(services.ErrValidation, stageName, "decode reply", "Enrichment reply did not match schema", err)
	}
	if err := validate(raw); err != nil {
		return Output{}, services.Wrap(services.ErrValidation, stageName, "decode reply", "Enrichment reply did not match schema", err)
	}
	return Sanitize(raw, in.Transcript.EndMs), nil
}

func validate(raw Output) error {
	for i, e := range raw.Entities {
		switch e.Type {
		case entities.TypePerson, entities.TypeOrg, entities.TypeLocation:
		default:
			return fmt.Errorf("entities[%d]: unsupported type %q", i, e.Type)
		}
	}
	for i, ch := range raw.Chapters {
		if ch.StartMs < 0 || ch.EndMs < 0 {
			return fmt.Errorf("chapters[%d]: negative bounds", i)
		}
	}
	return nil
}
