package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectPutter is the part of *minio.Client the bucket store uses
type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type BucketConfig struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// PublicURL overrides the URL prefix returned for saved objects
	PublicURL string
}

// BucketStore uploads into an S3-compatible bucket
type BucketStore struct {
	client  objectPutter
	bucket  string
	baseURL string
}

// NewBucketStore builds a minio client for cfg. No request is made.
func NewBucketStore(cfg BucketConfig) (*BucketStore, *minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bucket client: %w", err)
	}
	return newBucketStore(client, cfg), client, nil
}

func newBucketStore(client objectPutter, cfg BucketConfig) *BucketStore {
	return &BucketStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: publicBaseURL(cfg),
	}
}

func publicBaseURL(cfg BucketConfig) string {
	if cfg.PublicURL != "" {
		return strings.TrimRight(cfg.PublicURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
}

func (s *BucketStore) Strategy() Strategy {
	return StrategyBucket
}

func (s *BucketStore) Save(ctx context.Context, upload Upload) (*Reference, error) {
	name := GenerateName(upload.Filename)

	_, err := s.client.PutObject(ctx, s.bucket, name,
		bytes.NewReader(upload.Data), int64(len(upload.Data)),
		minio.PutObjectOptions{ContentType: contentType(upload)},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: put %s/%s: %v", ErrStoreFailure, s.bucket, name, err)
	}

	return &Reference{URL: s.baseURL + "/" + name}, nil
}
