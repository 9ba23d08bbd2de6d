package archive

import (
	"context"
	"path/filepath"
	"time"

	"vidintel/internal/config"
	"vidintel/internal/fileutil"
	"vidintel/internal/services"
	"vidintel/internal/store"
)

// FS archives job records below a local directory.
type FS struct {
	dir string
	now func() time.Time
}

// NewFS returns a filesystem archiver rooted at dir.
func NewFS(dir string) *FS {
	return &FS{dir: dir, now: time.Now}
}

// Name implements Archiver.
func (a *FS) Name() string { return config.ArchiveFS }

// Archive writes the record atomically and verifies it on disk.
func (a *FS) Archive(ctx context.Context, job *store.Job) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	data, err := encode(job, a.now())
	if err != nil {
		return Result{}, err
	}
	dest := filepath.Join(a.dir, filepath.FromSlash(ObjectKey(job)))
	sum := fileutil.SHA256Hex(data)
	if err := fileutil.WriteAtomic(dest, data, 0o644); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "archive", "write", "write job record", err)
	}
	if err := fileutil.VerifyFile(dest, int64(len(data)), sum); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "archive", "verify", "verify job record", err)
	}
	return Result{Location: dest, Bytes: int64(len(data)), SHA256: sum}, nil
}
