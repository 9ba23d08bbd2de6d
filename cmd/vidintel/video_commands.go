package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidintel/internal/config"
	"vidintel/internal/services/youtube"
	"vidintel/internal/store"
)

const defaultProvider = "youtube"

func newVideoCommand(ctx *commandContext) *cobra.Command {
	videoCmd := &cobra.Command{
		Use:   "video",
		Short: "Register and list videos",
	}
	videoCmd.AddCommand(newVideoAddCommand(ctx))
	videoCmd.AddCommand(newVideoListCommand(ctx))
	return videoCmd
}

func newVideoAddCommand(ctx *commandContext) *cobra.Command {
	var (
		rawURL     string
		provider   string
		providerID string
		title      string
		durationMs int64
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a video (idempotent per provider id)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL = strings.TrimSpace(rawURL)
			if rawURL == "" {
				return errors.New("--url is required")
			}
			provider = strings.ToLower(strings.TrimSpace(provider))
			providerID = strings.TrimSpace(providerID)
			if providerID == "" {
				if provider != defaultProvider {
					return errors.New("--provider-id is required for non-youtube providers")
				}
				id, err := youtube.VideoID(rawURL)
				if err != nil {
					return fmt.Errorf("derive provider id: %w", err)
				}
				providerID = id
			}

			meta := store.VideoMetadata{Title: strings.TrimSpace(title)}
			if durationMs > 0 {
				meta.DurationMs = &durationMs
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				video, err := st.UpsertVideo(cmd.Context(), provider, providerID, rawURL, meta)
				if err != nil {
					return fmt.Errorf("register video: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, video)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Video %s registered (%s:%s)\n", video.ID, video.Provider, video.ProviderVideoID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&rawURL, "url", "", "Video URL")
	cmd.Flags().StringVar(&provider, "provider", defaultProvider, "Video provider")
	cmd.Flags().StringVar(&providerID, "provider-id", "", "Provider video id (derived from YouTube URLs when omitted)")
	cmd.Flags().StringVar(&title, "title", "", "Video title")
	cmd.Flags().Int64Var(&durationMs, "duration-ms", 0, "Video duration in milliseconds")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newVideoListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				videos, err := st.ListVideos(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					if videos == nil {
						videos = []*store.Video{}
					}
					return writeJSON(cmd, videos)
				}
				rows := make([][]string, 0, len(videos))
				for _, v := range videos {
					duration := "-"
					if v.DurationMs != nil {
						duration = formatMs(*v.DurationMs)
					}
					rows = append(rows, []string{v.ID, v.Provider + ":" + v.ProviderVideoID, orDash(v.Title), duration})
				}
				printTable(cmd.OutOrStdout(), []column{
					{title: "ID"},
					{title: "Provider ID"},
					{title: "Title", maxWidth: 48},
					{title: "Duration", numeric: true},
				}, rows, "No videos registered")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newFramesCommand(ctx *commandContext) *cobra.Command {
	framesCmd := &cobra.Command{
		Use:   "frames",
		Short: "Frame analysis utilities",
	}
	framesCmd.AddCommand(&cobra.Command{
		Use:   "import <video-id> <file.json>",
		Short: "Import frame analyses produced by an external frame pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			frames, err := readFrames(args[1])
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				video, err := st.GetVideo(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if video == nil {
					return fmt.Errorf("video %s not found", args[0])
				}
				n, err := st.InsertFrameAnalyses(cmd.Context(), video.ID, frames)
				if err != nil {
					return fmt.Errorf("import frames: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s frame analyses for %s\n", strconv.Itoa(n), video.ID)
				return nil
			})
		},
	})
	return framesCmd
}

// readFrames accepts either a bare array or {"frames": [...]}.
func readFrames(path string) ([]store.FrameAnalysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frames file: %w", err)
	}
	var frames []store.FrameAnalysis
	if err := json.Unmarshal(data, &frames); err != nil {
		var wrapped struct {
			Frames []store.FrameAnalysis `json:"frames"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse frames file: %w", err)
		}
		frames = wrapped.Frames
	}
	for i, f := range frames {
		if f.EndMs <= f.StartMs {
			return nil, fmt.Errorf("frame %d: end_ms must be greater than start_ms", i)
		}
	}
	return frames, nil
}
