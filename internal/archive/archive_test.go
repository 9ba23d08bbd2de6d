package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"vidintel/internal/config"
	"vidintel/internal/services"
	"vidintel/internal/store"
)

func sampleJob() *store.Job {
	return &store.Job{
		ID:     "job-1",
		Type:   store.JobTypeIngestVideo,
		Status: store.JobCompleted,
		Output: json.RawMessage(`{"cues":3}`),
	}
}

func TestObjectKey(t *testing.T) {
	if got := ObjectKey(sampleJob()); got != "ingest_video/job-1.json" {
		t.Fatalf("ObjectKey = %q", got)
	}
	odd := &store.Job{ID: "../../etc", Type: "Detect Chapters"}
	if got := ObjectKey(odd); got != "detect_chapters/etc.json" {
		t.Fatalf("ObjectKey(odd) = %q", got)
	}
}

func TestFSArchiveWritesRecord(t *testing.T) {
	dir := t.TempDir()
	a := NewFS(dir)
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	res, err := a.Archive(context.Background(), sampleJob())
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	want := filepath.Join(dir, "ingest_video", "job-1.json")
	if res.Location != want || res.Bytes == 0 || len(res.SHA256) != 64 {
		t.Fatalf("unexpected result: %#v", res)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("decode archive: %v", err)
	}
	if rec.Job == nil || rec.Job.ID != "job-1" || string(rec.Job.Output) != `{"cues":3}` {
		t.Fatalf("unexpected record: %#v", rec.Job)
	}
	if rec.ArchivedAt.Year() != 2026 {
		t.Fatalf("archived_at = %v", rec.ArchivedAt)
	}
}

func TestFSArchiveRejectsMissingID(t *testing.T) {
	_, err := NewFS(t.TempDir()).Archive(context.Background(), &store.Job{Type: "x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

type fakeMinio struct {
	exists  bool
	made    string
	bucket  string
	key     string
	body    []byte
	opts    minio.PutObjectOptions
	putErr  error
	checked int
}

func (f *fakeMinio) BucketExists(_ context.Context, bucket string) (bool, error) {
	f.checked++
	return f.exists, nil
}

func (f *fakeMinio) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = bucket
	return nil
}

func (f *fakeMinio) PutObject(_ context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(buf.Len()) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	f.bucket, f.key, f.body, f.opts = bucket, object, buf.Bytes(), opts
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func TestMinIOArchiveUploadsObject(t *testing.T) {
	client := &fakeMinio{}
	a := NewMinIO(client, "vidintel")
	if err := a.ensureBucket(context.Background()); err != nil {
		t.Fatalf("ensureBucket: %v", err)
	}
	if client.made != "vidintel" {
		t.Fatalf("bucket not created: %q", client.made)
	}

	res, err := a.Archive(context.Background(), sampleJob())
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if res.Location != "s3://vidintel/ingest_video/job-1.json" {
		t.Fatalf("location = %q", res.Location)
	}
	if client.opts.ContentType != "application/json" || client.opts.UserMetadata["sha256"] != res.SHA256 {
		t.Fatalf("unexpected put options: %#v", client.opts)
	}
	if !bytes.Contains(client.body, []byte(`"id": "job-1"`)) {
		t.Fatalf("unexpected body: %s", client.body)
	}
}

func TestMinIOArchiveWrapsUploadErrors(t *testing.T) {
	a := NewMinIO(&fakeMinio{exists: true, putErr: errors.New("denied")}, "b")
	if _, err := a.Archive(context.Background(), sampleJob()); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default()
	if a, err := New(context.Background(), &cfg); err != nil || a != nil {
		t.Fatalf("none backend = %v, %v", a, err)
	}
	cfg.Archive.Backend = config.ArchiveFS
	cfg.Archive.Dir = t.TempDir()
	a, err := New(context.Background(), &cfg)
	if err != nil || a == nil || a.Name() != config.ArchiveFS {
		t.Fatalf("fs backend = %v, %v", a, err)
	}
	cfg.Archive.Backend = config.ArchiveMinIO
	if _, err := New(context.Background(), &cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("minio without endpoint err = %v", err)
	}
	cfg.Archive.Backend = "tape"
	if _, err := New(context.Background(), &cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("unknown backend err = %v", err)
	}
}
