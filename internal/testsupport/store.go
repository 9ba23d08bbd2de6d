package testsupport

import (
	"context"
	"testing"

	"vidintel/internal/config"
	"vidintel/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedVideo registers a YouTube video with the given provider id.
func SeedVideo(t testing.TB, st *store.Store, providerVideoID string) *store.Video {
	t.Helper()

	video, err := st.UpsertVideo(context.Background(), "youtube", providerVideoID,
		"https://www.youtube.com/watch?v="+providerVideoID, store.VideoMetadata{Title: "Test " + providerVideoID})
	if err != nil {
		t.Fatalf("store.UpsertVideo: %v", err)
	}
	return video
}

// SeedTranscript creates a transcript with the provided cue texts spaced five seconds apart.
func SeedTranscript(t testing.TB, st *store.Store, videoID string, texts ...string) (*store.Transcript, []store.Cue) {
	t.Helper()

	ctx := context.Background()
	tr, _, err := st.CreateTranscriptIfMissing(ctx, store.NewTranscript{
		VideoID:  videoID,
		Language: "en",
		Source:   store.TranscriptSourceBestEffort,
	})
	if err != nil {
		t.Fatalf("CreateTranscriptIfMissing: %v", err)
	}
	inputs := make([]store.CueInput, 0, len(texts))
	for i, text := range texts {
		inputs = append(inputs, store.CueInput{
			Idx:      i,
			StartMs:  int64(i) * 5000,
			EndMs:    int64(i)*5000 + 4000,
			Text:     text,
			NormText: text,
		})
	}
	if _, err := st.InsertCues(ctx, videoID, tr.ID, inputs); err != nil {
		t.Fatalf("InsertCues: %v", err)
	}
	cues, err := st.ListCues(ctx, tr.ID)
	if err != nil {
		t.Fatalf("ListCues: %v", err)
	}
	return tr, cues
}

// CreateJob inserts a queued job.
func CreateJob(t testing.TB, st *store.Store, jobType string, input any) *store.Job {
	t.Helper()

	job, err := st.CreateJob(context.Background(), jobType, input)
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}
