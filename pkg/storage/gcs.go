package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/medixcare/pharmacy-api/pkg/logger"
)

type GCSConfig struct {
	BucketName      string
	CDNDomain       string
	CredentialsFile string
}

type gcsGateway struct {
	log        *logger.Logger
	client     *storage.Client
	bucketName string
	cdnDomain  string
}

// NewGCSGateway builds a Gateway backed by a Google Cloud Storage bucket.
func NewGCSGateway(ctx context.Context, cfg GCSConfig, log *logger.Logger) (Gateway, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &gcsGateway{
		log:        log.WithFields(map[string]interface{}{"component": "gcs_gateway"}),
		client:     client,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

func (g *gcsGateway) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucketName).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write object %q: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer for %q: %w", path, err)
	}
	return g.publicURL(path), nil
}

func (g *gcsGateway) Delete(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := g.client.Bucket(g.bucketName).Object(path).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete object %q: %w", path, err)
	}
	return nil
}

func (g *gcsGateway) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	url, err := g.client.Bucket(g.bucketName).SignedURL(path, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for %q: %w", path, err)
	}
	return url, nil
}

func (g *gcsGateway) publicURL(path string) string {
	if g.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", g.cdnDomain, path)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucketName, path)
}
