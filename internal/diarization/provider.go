package diarization

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Result is a backend's diarization output.
type Result struct {
	Backend    string
	Model      string
	Device     string
	DurationMs int64
	Speakers   []Speaker
}

// Provider produces speaker turns for a media URL.
type Provider interface {
	Run(ctx context.Context, mediaURL, backend string, transcriptEndMs int64) (Result, error)
}

// CommandRunner executes name with args and returns stdout and stderr.
type CommandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// DefaultPythonBins is the interpreter search order when none is configured.
var DefaultPythonBins = []string{"python3.11", "python3.12", "python3"}

// CommandProvider runs the diarization script under the first python
// interpreter that exists.
type CommandProvider struct {
	script  string
	bins    []string
	timeout time.Duration
	run     CommandRunner
}

// NewCommandProvider builds a provider for script. Empty bins use DefaultPythonBins.
func NewCommandProvider(script string, bins []string, timeout time.Duration) *CommandProvider {
	cleaned := make([]string, 0, len(bins))
	for _, bin := range bins {
		if bin = strings.TrimSpace(bin); bin != "" {
			cleaned = append(cleaned, bin)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, DefaultPythonBins...)
	}
	return &CommandProvider{script: script, bins: cleaned, timeout: timeout, run: execCommand}
}

// WithRunner swaps the command runner (for testing).
func (p *CommandProvider) WithRunner(run CommandRunner) *CommandProvider {
	clone := *p
	clone.run = run
	return &clone
}

type payload struct {
	OK         *bool     `json:"ok"`
	Error      string    `json:"error"`
	Backend    string    `json:"backend"`
	Model      string    `json:"model"`
	Device     string    `json:"device"`
	DurationMs float64   `json:"duration_ms"`
	Speakers   []Speaker `json:"speakers"`
}

// Run implements Provider.
func (p *CommandProvider) Run(ctx context.Context, mediaURL, backend string, transcriptEndMs int64) (Result, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	args := []string{
		p.script,
		"--url", mediaURL,
		"--backend", backend,
		"--transcript-end-ms", strconv.FormatInt(max(0, transcriptEndMs), 10),
	}

	var (
		stdout  []byte
		lastErr error
		ran     bool
	)
	for _, bin := range p.bins {
		out, stderr, err := p.run(ctx, bin, args...)
		if err != nil {
			if isNotFound(err) {
				lastErr = fmt.Errorf("%s: %w", bin, err)
				continue
			}
			msg := strings.TrimSpace(string(stderr))
			if msg == "" {
				msg = "diarize provider failed"
			}
			return Result{}, fmt.Errorf("%s: %w", msg, err)
		}
		stdout, ran = out, true
		break
	}
	if !ran {
		if lastErr == nil {
			lastErr = errors.New("no python interpreter configured")
		}
		return Result{}, fmt.Errorf("run diarize provider: %w", lastErr)
	}
	return decode(stdout, backend)
}

func decode(stdout []byte, backend string) (Result, error) {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimSpace(stdout)))
	dec.DisallowUnknownFields()
	var parsed payload
	if err := dec.Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("decode diarize output: %w", err)
	}
	if parsed.OK == nil {
		return Result{}, errors.New("decode diarize output: missing ok field")
	}
	if !*parsed.OK {
		msg := strings.TrimSpace(parsed.Error)
		if msg == "" {
			msg = "diarization provider failed"
		}
		return Result{}, errors.New(msg)
	}
	if parsed.Speakers == nil {
		return Result{}, errors.New("diarization provider returned no speakers")
	}
	for _, sp := range parsed.Speakers {
		if strings.TrimSpace(sp.Key) == "" {
			return Result{}, errors.New("decode diarize output: speaker key is required")
		}
		for _, seg := range sp.Segments {
			if seg.StartMs < 0 || seg.EndMs < 0 {
				return Result{}, fmt.Errorf("decode diarize output: negative segment for %s", sp.Key)
			}
			if seg.Confidence != nil && (*seg.Confidence < 0 || *seg.Confidence > 1) {
				return Result{}, fmt.Errorf("decode diarize output: confidence out of range for %s", sp.Key)
			}
		}
	}
	result := Result{
		Backend:    parsed.Backend,
		Model:      parsed.Model,
		Device:     parsed.Device,
		DurationMs: max(0, int64(parsed.DurationMs)),
		Speakers:   parsed.Speakers,
	}
	if result.Backend == "" {
		result.Backend = backend
	}
	return result, nil
}

// Source labels stored speakers, e.g. "diarize:pyannote:3.1".
func (r Result) Source() string {
	source := "diarize:" + r.Backend
	if r.Model != "" {
		source += ":" + r.Model
	}
	return source
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
