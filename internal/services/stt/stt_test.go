package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidintel/internal/config"
	"vidintel/internal/services"
)

// fakeYtDLP writes an audio file named after the -o template.
func fakeYtDLP(ext string) CommandRunner {
	return func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		for i, arg := range args {
			if arg == "-o" {
				path := strings.Replace(args[i+1], "%(ext)s", ext, 1)
				return nil, nil, os.WriteFile(path, []byte("audio"), 0o644)
			}
		}
		return nil, nil, errors.New("missing -o")
	}
}

func TestDownloaderPrefersMP3(t *testing.T) {
	dir := t.TempDir()
	path, err := NewDownloader("", fakeYtDLP("mp3")).Download(context.Background(), "https://example.com/v", dir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if path != filepath.Join(dir, "audio.mp3") {
		t.Fatalf("path = %q", path)
	}
}

func TestDownloaderFallsBackToNewestAudio(t *testing.T) {
	dir := t.TempDir()
	path, err := NewDownloader("", fakeYtDLP("m4a")).Download(context.Background(), "https://example.com/v", dir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Base(path) != "audio.m4a" {
		t.Fatalf("path = %q", path)
	}
}

func TestDownloaderReportsStderr(t *testing.T) {
	run := func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("ERROR: video unavailable"), errors.New("exit status 1")
	}
	_, err := NewDownloader("yt-dlp", run).Download(context.Background(), "u", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "video unavailable") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestOpenAITranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("response_format") != "verbose_json" || r.FormValue("language") != "en" {
			t.Errorf("unexpected form: %v", r.MultipartForm.Value)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "audio" {
				t.Errorf("file body = %q", data)
			}
		}
		_, _ = io.WriteString(w, `{"text":"all","segments":[{"start":0,"end":1.5,"text":" Hello "},{"start":2,"end":1,"text":"x"},{"start":3,"end":4,"text":"  "}]}`)
	}))
	defer server.Close()

	o := &OpenAI{
		BaseURL:    server.URL,
		APIKey:     "sk",
		Model:      "whisper-1",
		TempDir:    t.TempDir(),
		Downloader: NewDownloader("", fakeYtDLP("mp3")),
		HTTPClient: server.Client(),
	}
	res, err := o.Transcribe(context.Background(), "https://example.com/v", "english")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(res.Cues) != 2 {
		t.Fatalf("cues = %#v", res.Cues)
	}
	if res.Cues[0].Text != "Hello" || res.Cues[0].Duration != 1.5 {
		t.Fatalf("first cue = %#v", res.Cues[0])
	}
	if res.Cues[1].Duration != 0.01 {
		t.Fatalf("inverted segment should get minimum duration, got %#v", res.Cues[1])
	}
}

func TestCuesFromVerboseTextOnly(t *testing.T) {
	cues := cuesFromVerbose(verboseTranscription{Text: " only text "})
	if len(cues) != 1 || cues[0].Duration != 10 || cues[0].Text != "only text" {
		t.Fatalf("cues = %#v", cues)
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	_, err := (&OpenAI{}).Transcribe(context.Background(), "u", "en")
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected key error, got %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	backend, name, err := NewFromConfig(&cfg)
	if err != nil || backend != nil || name != "" {
		t.Fatalf("empty provider = %v, %q, %v", backend, name, err)
	}

	cfg.STT.Provider = config.STTMock
	backend, name, err = NewFromConfig(&cfg)
	if err != nil || name != "mock" {
		t.Fatalf("mock provider = %q, %v", name, err)
	}
	res, err := backend.Transcribe(context.Background(), "https://example.com/v", "en")
	if err != nil || len(res.Cues) != 1 || !strings.Contains(res.Cues[0].Text, "https://example.com/v") {
		t.Fatalf("mock transcribe = %#v, %v", res, err)
	}

	cfg.STT.Provider = "carrier-pigeon"
	if _, _, err := NewFromConfig(&cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
