package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vidintel/internal/services"
	"vidintel/internal/stepgate"
)

// Transcript sources recorded on the transcript row.
const (
	SourceBestEffort = "best_effort"
	SourceSTT        = "stt"
)

// Request identifies what to acquire.
type Request struct {
	ProviderVideoID string
	MediaURL        string
	Language        string
	Gate            stepgate.Gate
}

// Acquired is a normalized transcript ready for persistence.
type Acquired struct {
	Source      string
	Language    string
	IsGenerated bool
	Provider    string
	Model       string
	RawCount    int
	Cues        []Cue
}

// Attempt describes one provider call for the job log.
type Attempt struct {
	Source   string
	Provider string
	Err      error
}

// Engine selects between the caption provider and the STT fallback.
type Engine struct {
	provider    Provider
	stt         STT
	sttProvider string
	observe     func(Attempt)
}

// NewEngine builds an engine. stt may be nil when no backend is configured;
// sttProvider names the backend for logs and the transcript payload.
func NewEngine(provider Provider, stt STT, sttProvider string) *Engine {
	return &Engine{provider: provider, stt: stt, sttProvider: strings.TrimSpace(sttProvider)}
}

// WithObserver registers a callback invoked after every provider attempt.
func (e *Engine) WithObserver(fn func(Attempt)) *Engine {
	clone := *e
	clone.observe = fn
	return &clone
}

// STTConfigured reports whether a fallback backend exists.
func (e *Engine) STTConfigured() bool {
	return e != nil && e.stt != nil && e.sttProvider != ""
}

// Acquire fetches captions, falling back to STT when allowed. Every failure
// it returns is fatal to the ingest job.
func (e *Engine) Acquire(ctx context.Context, req Request) (Acquired, error) {
	if e == nil || e.provider == nil {
		return Acquired{}, services.Wrap(services.ErrConfiguration, "transcript", "acquire", "no transcript provider configured", nil)
	}
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = "en"
	}

	result, fetchErr := e.provider.Fetch(ctx, req.ProviderVideoID, language)
	if fetchErr == nil && len(result.Cues) == 0 {
		fetchErr = errors.New("transcript provider returned no cues")
	}
	e.notify(Attempt{Source: SourceBestEffort, Provider: SourceBestEffort, Err: fetchErr})
	if fetchErr == nil {
		lang := strings.TrimSpace(result.Language)
		if lang == "" {
			lang = language
		}
		return Acquired{
			Source:      SourceBestEffort,
			Language:    lang,
			IsGenerated: result.IsGenerated,
			Provider:    SourceBestEffort,
			RawCount:    len(result.Cues),
			Cues:        Normalize(result.Cues),
		}, nil
	}
	if ctx.Err() != nil {
		return Acquired{}, services.Wrap(services.ErrCanceled, "transcript", "fetch", "canceled", ctx.Err())
	}

	if !e.STTConfigured() || !req.Gate.Enabled(stepgate.STT) {
		return Acquired{}, services.Wrap(services.ErrExternalTool, "transcript", "fetch", "no transcript available", fetchErr)
	}

	sttResult, err := e.stt.Transcribe(ctx, req.MediaURL, language)
	if err == nil && len(sttResult.Cues) == 0 {
		err = errors.New("stt returned no cues")
	}
	provider := "stt:" + e.sttProvider
	e.notify(Attempt{Source: SourceSTT, Provider: provider, Err: err})
	if err != nil {
		return Acquired{}, services.Wrap(services.ErrExternalTool, "transcript", "stt",
			fmt.Sprintf("caption fetch failed (%v) and %s failed", fetchErr, provider), err)
	}
	return Acquired{
		Source:      SourceSTT,
		Language:    language,
		IsGenerated: true,
		Provider:    provider,
		Model:       sttResult.Model,
		RawCount:    len(sttResult.Cues),
		Cues:        Normalize(sttResult.Cues),
	}, nil
}

func (e *Engine) notify(a Attempt) {
	if e.observe != nil {
		e.observe(a)
	}
}
