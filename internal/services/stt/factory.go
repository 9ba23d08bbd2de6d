package stt

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"vidintel/internal/config"
	"vidintel/internal/services"
	"vidintel/internal/services/whisperx"
	"vidintel/internal/transcript"
)

// NewFromConfig returns the configured backend and its name. An empty
// provider yields a nil backend, which disables the fallback.
func NewFromConfig(cfg *config.Config) (transcript.STT, string, error) {
	sttCfg := cfg.STT
	timeout := time.Duration(sttCfg.TimeoutSeconds) * time.Second
	downloader := NewDownloader(sttCfg.YtDLPBinary, nil)
	switch sttCfg.Provider {
	case "":
		return nil, "", nil
	case config.STTMock:
		return Mock{}, config.STTMock, nil
	case config.STTOpenAI:
		return withTimeout(&OpenAI{
			BaseURL:    sttCfg.BaseURL,
			APIKey:     sttCfg.APIKey,
			Model:      sttCfg.Model,
			Downloader: downloader,
			HTTPClient: &http.Client{Timeout: timeout},
		}, timeout), config.STTOpenAI, nil
	case config.STTWhisperX:
		svc := whisperx.NewService(whisperx.Config{
			Model:       sttCfg.Model,
			CUDAEnabled: sttCfg.WhisperXCUDA,
			VADMethod:   sttCfg.WhisperXVADMethod,
			HFToken:     sttCfg.HFToken,
		})
		return withTimeout(&WhisperX{Service: svc, Downloader: downloader}, timeout), config.STTWhisperX, nil
	default:
		return nil, "", services.Wrap(services.ErrConfiguration, "stt", "init",
			fmt.Sprintf("unknown stt provider %q", sttCfg.Provider), nil)
	}
}

type timeoutSTT struct {
	inner   transcript.STT
	timeout time.Duration
}

func withTimeout(inner transcript.STT, timeout time.Duration) transcript.STT {
	if timeout <= 0 {
		return inner
	}
	return timeoutSTT{inner: inner, timeout: timeout}
}

func (t timeoutSTT) Transcribe(ctx context.Context, mediaURL, lang string) (transcript.STTResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Transcribe(ctx, mediaURL, lang)
}
