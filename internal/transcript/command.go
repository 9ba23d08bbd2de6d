package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner executes name with args and returns stdout and stderr. A
// non-zero exit is not an error by itself; the caller inspects the payload.
type CommandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// CommandProvider runs the caption fetch script, which prints one JSON object
// on stdout even when it fails.
type CommandProvider struct {
	pythonBin string
	script    string
	timeout   time.Duration
	run       CommandRunner
}

// NewCommandProvider builds a provider invoking "<pythonBin> <script> --video-id ID --lang L".
func NewCommandProvider(pythonBin, script string, timeout time.Duration) *CommandProvider {
	if strings.TrimSpace(pythonBin) == "" {
		pythonBin = "python3"
	}
	return &CommandProvider{pythonBin: pythonBin, script: script, timeout: timeout, run: execCommand}
}

// WithRunner swaps the command runner (for testing).
func (p *CommandProvider) WithRunner(run CommandRunner) *CommandProvider {
	clone := *p
	clone.run = run
	return &clone
}

type fetchPayload struct {
	OK          bool     `json:"ok"`
	Error       string   `json:"error"`
	Language    string   `json:"language"`
	IsGenerated bool     `json:"is_generated"`
	Cues        []RawCue `json:"cues"`
}

// Fetch implements Provider.
func (p *CommandProvider) Fetch(ctx context.Context, providerVideoID, language string) (Result, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	stdout, stderr, runErr := p.run(ctx, p.pythonBin, p.script, "--video-id", providerVideoID, "--lang", language)
	if ctx.Err() != nil {
		return Result{}, fmt.Errorf("transcript provider: %w", ctx.Err())
	}

	var payload fetchPayload
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &payload); err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = "transcript provider returned invalid JSON"
		}
		if runErr != nil {
			return Result{}, fmt.Errorf("%s: %w", msg, runErr)
		}
		return Result{}, errors.New(msg)
	}
	if !payload.OK {
		msg := strings.TrimSpace(payload.Error)
		if msg == "" {
			msg = "transcript provider failed"
		}
		return Result{}, errors.New(msg)
	}
	if len(payload.Cues) == 0 {
		return Result{}, errors.New("transcript provider returned no cues")
	}
	return Result{IsGenerated: payload.IsGenerated, Language: payload.Language, Cues: payload.Cues}, nil
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
