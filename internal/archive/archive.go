package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"vidintel/internal/config"
	"vidintel/internal/services"
	"vidintel/internal/store"
	"vidintel/internal/textutil"
)

// Archiver persists a finished job record.
type Archiver interface {
	Archive(ctx context.Context, job *store.Job) (Result, error)
	Name() string
}

// Result describes one archived object.
type Result struct {
	Location string `json:"location"`
	Bytes    int64  `json:"bytes"`
	SHA256   string `json:"sha256"`
}

// Record is the archived document.
type Record struct {
	ArchivedAt time.Time  `json:"archived_at"`
	Job        *store.Job `json:"job"`
}

// New builds the archiver selected in configuration; backend none yields nil.
func New(ctx context.Context, cfg *config.Config) (Archiver, error) {
	if cfg == nil {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Archive.Backend)) {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchiveFS:
		return NewFS(cfg.Archive.Dir), nil
	case config.ArchiveMinIO:
		archiver, err := DialMinIO(ctx, cfg.Archive)
		if err != nil {
			return nil, err
		}
		return archiver, nil
	default:
		return nil, services.Wrap(
			services.ErrConfiguration,
			"archive",
			"new",
			fmt.Sprintf("unsupported archive backend %q", cfg.Archive.Backend),
			nil,
		)
	}
}

// ObjectKey returns the relative key for a job record.
func ObjectKey(job *store.Job) string {
	return path.Join(textutil.SanitizeToken(job.Type), textutil.SanitizeToken(job.ID)+".json")
}

func encode(job *store.Job, now time.Time) ([]byte, error) {
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return nil, services.Wrap(services.ErrValidation, "archive", "encode", "job with id required", nil)
	}
	data, err := json.MarshalIndent(Record{ArchivedAt: now.UTC(), Job: job}, "", "  ")
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "archive", "encode", "marshal job record", err)
	}
	return append(data, '\n'), nil
}
