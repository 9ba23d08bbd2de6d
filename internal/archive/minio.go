package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"vidintel/internal/config"
	"vidintel/internal/fileutil"
	"vidintel/internal/services"
	"vidintel/internal/store"
)

// objectPutter is the subset of *minio.Client the archiver uses.
type objectPutter interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIO archives job records to an S3-compatible bucket.
type MinIO struct {
	client objectPutter
	bucket string
	now    func() time.Time
}

// DialMinIO connects to the configured endpoint and ensures the bucket exists.
func DialMinIO(ctx context.Context, cfg config.Archive) (*MinIO, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "minio", "archive.endpoint is required for the minio backend", nil)
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "minio", "archive.bucket is required for the minio backend", nil)
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "minio", "create minio client", err)
	}
	archiver := NewMinIO(client, cfg.Bucket)
	if err := archiver.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return archiver, nil
}

// NewMinIO wraps an existing client.
func NewMinIO(client objectPutter, bucket string) *MinIO {
	return &MinIO{client: client, bucket: strings.TrimSpace(bucket), now: time.Now}
}

// Name implements Archiver.
func (a *MinIO) Name() string { return config.ArchiveMinIO }

func (a *MinIO) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return services.Wrap(services.ErrTransient, "archive", "minio", "check bucket", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return services.Wrap(services.ErrTransient, "archive", "minio", fmt.Sprintf("create bucket %s", a.bucket), err)
	}
	return nil
}

// Archive uploads the record under ObjectKey.
func (a *MinIO) Archive(ctx context.Context, job *store.Job) (Result, error) {
	data, err := encode(job, a.now())
	if err != nil {
		return Result{}, err
	}
	key := ObjectKey(job)
	sum := fileutil.SHA256Hex(data)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"sha256": sum, "job-type": job.Type},
	})
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "archive", "upload", fmt.Sprintf("put %s", key), err)
	}
	return Result{Location: fmt.Sprintf("s3://%s/%s", a.bucket, key), Bytes: int64(len(data)), SHA256: sum}, nil
}
