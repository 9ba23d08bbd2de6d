package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// CommandRunner executes an external command.
type CommandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

var audioExt = regexp.MustCompile(`(?i)\.(mp3|m4a|wav|webm|mp4|opus)$`)

// Downloader fetches the audio track of a media URL into a directory.
type Downloader struct {
	binary string
	run    CommandRunner
}

// NewDownloader builds a yt-dlp downloader.
func NewDownloader(binary string, run CommandRunner) *Downloader {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	if run == nil {
		run = execCommand
	}
	return &Downloader{binary: binary, run: run}
}

// Download writes audio.mp3 into dir and returns its path. When yt-dlp picks
// another container, the newest audio file in dir is returned instead.
func (d *Downloader) Download(ctx context.Context, mediaURL, dir string) (string, error) {
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--quiet",
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "5",
		"-o", filepath.Join(dir, "audio.%(ext)s"),
		mediaURL,
	}
	stdout, stderr, err := d.run(ctx, d.binary, args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("yt-dlp timed out downloading audio")
		}
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = strings.TrimSpace(string(stdout))
		}
		return "", fmt.Errorf("yt-dlp failed: %w: %s", err, detail)
	}
	want := filepath.Join(dir, "audio.mp3")
	if _, err := os.Stat(want); err == nil {
		return want, nil
	}
	return newestAudio(dir)
}

func newestAudio(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("scan download dir: %w", err)
	}
	type candidate struct {
		path  string
		mtime int64
	}
	var files []candidate
	for _, entry := range entries {
		if entry.IsDir() || !audioExt.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{filepath.Join(dir, entry.Name()), info.ModTime().UnixNano()})
	}
	if len(files) == 0 {
		return "", errors.New("yt-dlp did not produce an audio file")
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime > files[j].mtime })
	return files[0].path, nil
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return []byte(stdout.String()), []byte(stderr.String()), err
}
