package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type localGateway struct {
	basePath string
	baseURL  string
}

// NewLocalGateway stores objects on the local filesystem. Used for
// development and tests; signed URLs are plain file URLs with an expiry
// query parameter.
func NewLocalGateway(basePath, baseURL string) (Gateway, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &localGateway{basePath: basePath, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *localGateway) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	full := filepath.Join(l.basePath, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write object %q: %w", path, err)
	}
	return l.baseURL + "/" + path, nil
}

func (l *localGateway) Delete(ctx context.Context, path string) error {
	full := filepath.Join(l.basePath, filepath.FromSlash(path))
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("failed to delete object %q: %w", path, err)
	}
	return nil
}

func (l *localGateway) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	full := filepath.Join(l.basePath, filepath.FromSlash(path))
	if _, err := os.Stat(full); err != nil {
		return "", fmt.Errorf("object %q not found: %w", path, err)
	}
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s/%s?expires=%d", l.baseURL, path, expires), nil
}
