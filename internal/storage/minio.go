package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"btcarts/internal/config"
	"btcarts/internal/model"
)

// MinIO object layout for uploads: <prefix>/<id>, with the original file
// name in the user metadata.
const (
	ObjectPrefix         = "grantUploads"
	MetaOriginalFilename = "Original-Filename"
)

// MinIOStore implements BlobStore on an S3-compatible backend (MinIO, AWS S3, etc.).
// It is safe for concurrent use by multiple goroutines.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

var _ BlobStore = (*MinIOStore)(nil)

// NewMinIO creates a new S3-compatible blob store backed by MinIO.
// It validates connectivity and ensures the bucket exists (creates it if missing).
func NewMinIO(cfg config.MinIOConfig) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ms := &MinIOStore{client: cli, bucket: cfg.Bucket}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Ensure bucket exists.
	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return ms, nil
}

// ObjectKey maps an upload id to its object key.
func ObjectKey(id string) string {
	return ObjectPrefix + "/" + id
}

// Locate stats the object without reading its content.
func (m *MinIOStore) Locate(ctx context.Context, id string) (model.BlobInfo, error) {
	st, err := m.client.StatObject(ctx, m.bucket, ObjectKey(id), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return model.BlobInfo{}, ErrBlobNotFound
		}
		return model.BlobInfo{}, fmt.Errorf("minio stat: %w", err)
	}
	return objectBlobInfo(id, st), nil
}

func objectBlobInfo(id string, st minio.ObjectInfo) model.BlobInfo {
	info := model.BlobInfo{ID: id, Length: st.Size, MimeType: st.ContentType}
	if info.Length < 0 {
		info.Length = -1
	}
	for k, v := range st.UserMetadata {
		if strings.EqualFold(k, MetaOriginalFilename) {
			info.Filename = v
			break
		}
	}
	return info
}

// OpenReadStream returns the object body. GetObject is lazy, so the object
// is stat'ed first to surface a missing key before any byte is sent.
func (m *MinIOStore) OpenReadStream(ctx context.Context, id string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, ObjectKey(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("minio stat: %w", err)
	}
	return newCtxReadCloser(ctx, obj), nil
}

// PingContext checks that the bucket is reachable.
func (m *MinIOStore) PingContext(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucket)
	return err
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}
