// Package objectstore subscribes to object notifications of the image bucket.
package objectstore

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/notification"
)

// ObjectCreatedEvents matches every object-created notification type.
var ObjectCreatedEvents = []string{string(notification.ObjectCreatedAll)}

// Config contains the information required to talk to an object store.
type Config struct {
	Provider  string
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Client represents the capabilities the notification bridge expects.
type Client interface {
	// Listen streams notifications for events until ctx is cancelled. The
	// channel is closed when the stream ends.
	Listen(ctx context.Context, events []string) <-chan notification.Info
	Ping(ctx context.Context) error
	Bucket() string
	Close() error
}

// New creates an object store client based on the given configuration. Only
// MinIO serves bucket notifications over the listen API; AWS S3 delivers them
// through SQS or EventBridge instead and is not supported here.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "minio":
		return newMinioClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported object store provider: %s", cfg.Provider)
	}
}

type minioClient struct {
	client *minio.Client
	bucket string
}

func newMinioClient(cfg Config) (Client, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &minioClient{client: cl, bucket: cfg.Bucket}, nil
}

func (m *minioClient) Listen(ctx context.Context, events []string) <-chan notification.Info {
	return m.client.ListenBucketNotification(ctx, m.bucket, "", "", events)
}

func (m *minioClient) Ping(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", m.bucket)
	}
	return nil
}

func (m *minioClient) Bucket() string {
	return m.bucket
}

func (m *minioClient) Close() error {
	return nil
}
