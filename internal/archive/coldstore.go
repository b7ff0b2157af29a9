package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ColdStore uploads archive bundles to an S3-compatible object store.
// Hot-storage bundles stay authoritative; the cold copy is for retention.
type ColdStore struct {
	client *minio.Client
	bucket string
}

// NewColdStore connects to the object store and ensures the bucket
// exists.
func NewColdStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*ColdStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("cold store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("cold store bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("cold store bucket create: %w", err)
		}
	}
	return &ColdStore{client: client, bucket: bucket}, nil
}

// Upload copies a local bundle to the bucket under the given object key.
func (c *ColdStore) Upload(localPath, objectKey string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	_, err := c.client.FPutObject(ctx, c.bucket, objectKey, localPath, minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	return nil
}
