package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidintel/internal/language"
	"vidintel/internal/services/whisperx"
	"vidintel/internal/transcript"
)

// Mock returns a single fixed cue. It exists for pipeline tests and demos.
type Mock struct{}

// Transcribe implements transcript.STT.
func (Mock) Transcribe(_ context.Context, mediaURL, _ string) (transcript.STTResult, error) {
	return transcript.STTResult{
		Provider: "mock",
		Model:    "mock",
		Cues:     []transcript.RawCue{{Start: 0, Duration: 5, Text: "STT mock transcript for " + mediaURL}},
	}, nil
}

// OpenAI posts downloaded audio to /v1/audio/transcriptions.
type OpenAI struct {
	BaseURL    string
	APIKey     string
	Model      string
	TempDir    string
	Downloader *Downloader
	HTTPClient *http.Client
}

type verboseTranscription struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe implements transcript.STT.
func (o *OpenAI) Transcribe(ctx context.Context, mediaURL, lang string) (transcript.STTResult, error) {
	result := transcript.STTResult{Provider: "openai", Model: o.Model}
	if strings.TrimSpace(o.APIKey) == "" {
		return result, fmt.Errorf("openai stt: OPENAI_API_KEY not set")
	}
	tmp, err := os.MkdirTemp(o.TempDir, "vidintel-stt-")
	if err != nil {
		return result, fmt.Errorf("openai stt: temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	audio, err := o.Downloader.Download(ctx, mediaURL, tmp)
	if err != nil {
		return result, fmt.Errorf("openai stt: %w", err)
	}
	body, contentType, err := multipartBody(audio, map[string]string{
		"model":           o.Model,
		"response_format": "verbose_json",
		"language":        language.ToISO2(lang),
	})
	if err != nil {
		return result, fmt.Errorf("openai stt: %w", err)
	}
	url := strings.TrimRight(o.BaseURL, "/") + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return result, fmt.Errorf("openai stt: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.APIKey)
	req.Header.Set("Content-Type", contentType)

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	resp, err := client.Do(req)
	if err != nil {
		return result, fmt.Errorf("openai stt: request failed: %w", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return result, fmt.Errorf("openai stt: http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	var parsed verboseTranscription
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return result, fmt.Errorf("openai stt: decode response: %w", err)
	}
	result.Cues = cuesFromVerbose(parsed)
	if len(result.Cues) == 0 {
		return result, fmt.Errorf("openai stt returned no segments")
	}
	return result, nil
}

func cuesFromVerbose(parsed verboseTranscription) []transcript.RawCue {
	if len(parsed.Segments) == 0 {
		if text := strings.TrimSpace(parsed.Text); text != "" {
			return []transcript.RawCue{{Start: 0, Duration: 10, Text: text}}
		}
		return nil
	}
	cues := make([]transcript.RawCue, 0, len(parsed.Segments))
	for _, seg := range parsed.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		start := max(0, seg.Start)
		end := max(start, seg.End)
		cues = append(cues, transcript.RawCue{Start: start, Duration: max(0.01, end-start), Text: text})
	}
	return cues
}

func multipartBody(filePath string, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	file, err := os.Open(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

// WhisperX downloads audio and transcribes it locally.
type WhisperX struct {
	Service    *whisperx.Service
	TempDir    string
	Downloader *Downloader
}

// Transcribe implements transcript.STT.
func (w *WhisperX) Transcribe(ctx context.Context, mediaURL, lang string) (transcript.STTResult, error) {
	result := transcript.STTResult{Provider: "whisperx", Model: w.Service.Model()}
	tmp, err := os.MkdirTemp(w.TempDir, "vidintel-whisperx-")
	if err != nil {
		return result, fmt.Errorf("whisperx stt: temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	audio, err := w.Downloader.Download(ctx, mediaURL, tmp)
	if err != nil {
		return result, fmt.Errorf("whisperx stt: %w", err)
	}
	segments, err := w.Service.Transcribe(ctx, audio, tmp, lang)
	if err != nil {
		return result, err
	}
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		start := max(0, seg.Start)
		result.Cues = append(result.Cues, transcript.RawCue{Start: start, Duration: max(0, seg.End-start), Text: text})
	}
	if len(result.Cues) == 0 {
		return result, fmt.Errorf("whisperx stt returned no segments")
	}
	return result, nil
}
