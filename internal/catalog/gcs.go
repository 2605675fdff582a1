package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

const gcsReadTimeout = 15 * time.Second

// GCSProvider reads the catalog document from a Cloud Storage object.
type GCSProvider struct {
	ctx    context.Context
	client *storage.Client
	bucket string
	object string
}

// NewGCSProvider creates a storage client for the given object.
func NewGCSProvider(ctx context.Context, bucket, object string) (*GCSProvider, error) {
	if bucket == "" || object == "" {
		return nil, errors.New("catalog bucket and object are required for gcs source")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSProvider{ctx: ctx, client: client, bucket: bucket, object: object}, nil
}

// ReadBytes downloads the object.
func (p *GCSProvider) ReadBytes() ([]byte, error) {
	ctx, cancel := context.WithTimeout(p.ctx, gcsReadTimeout)
	defer cancel()

	reader, err := p.client.Bucket(p.bucket).Object(p.object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", p.bucket, p.object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", p.bucket, p.object, err)
	}
	return data, nil
}

// Read is not supported; the document must go through a parser.
func (p *GCSProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("gcs provider does not support Read()")
}

// Close releases the storage client.
func (p *GCSProvider) Close() error {
	return p.client.Close()
}
