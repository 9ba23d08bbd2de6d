package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"vidintel/internal/config"
	"vidintel/internal/services/whisperx"
)

// Requirement defines an external dependency vidintel relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckFile reports whether a helper script exists and is a regular file.
func CheckFile(name, path, description string, optional bool) Status {
	path = strings.TrimSpace(path)
	status := Status{Name: name, Command: path, Description: description, Optional: optional}
	if path == "" {
		status.Detail = "path not configured"
		return status
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		status.Detail = fmt.Sprintf("file %q not found", path)
	case info.IsDir():
		status.Detail = fmt.Sprintf("%q is a directory", path)
	default:
		status.Available = true
	}
	return status
}

// ResolveFirst reports the first candidate binary found on PATH. Diarization
// accepts several interpreters and uses whichever resolves first.
func ResolveFirst(name, description string, candidates []string, optional bool) Status {
	status := Status{Name: name, Description: description, Optional: optional}
	var tried []string
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		tried = append(tried, candidate)
		if resolved, err := exec.LookPath(candidate); err == nil {
			status.Command = resolved
			status.Available = true
			return status
		}
	}
	if len(tried) == 0 {
		status.Detail = "no candidates configured"
		return status
	}
	status.Command = tried[0]
	status.Detail = fmt.Sprintf("none of %s found", strings.Join(tried, ", "))
	return status
}

// Check reports the external tools the configured pipeline needs. Caption
// fetching is required; STT and diarization tools are optional because those
// stages degrade without failing the job.
func Check(cfg *config.Config) []Status {
	if cfg == nil {
		return nil
	}
	results := CheckBinaries([]Requirement{{
		Name:        "Python",
		Command:     cfg.Transcript.PythonBin,
		Description: "Runs the caption fetch script",
	}})
	results = append(results, CheckFile("Caption script", cfg.Transcript.Script, "Fetches provider captions", false))

	if strings.EqualFold(cfg.STT.Provider, config.STTWhisperX) {
		results = append(results, CheckBinaries([]Requirement{
			{Name: "yt-dlp", Command: cfg.STT.YtDLPBinary, Description: "Downloads audio for local STT", Optional: true},
			{Name: "uvx", Command: whisperx.UVXCommand, Description: "Runs WhisperX for local speech-to-text", Optional: true},
			{Name: "FFmpeg", Command: "ffmpeg", Description: "Audio extraction for yt-dlp", Optional: true},
		})...)
	}

	if strings.TrimSpace(cfg.Diarization.Backend) != "" {
		results = append(results,
			ResolveFirst("Diarization Python", "Runs the diarization script", cfg.Diarization.PythonBins, true),
			CheckFile("Diarization script", cfg.Diarization.Script, "Speaker diarization", true),
		)
	}
	return results
}
