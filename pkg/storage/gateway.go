// Package storage provides the object storage gateway for prescription
// files: durable writes, compensating deletes, and signed retrieval URLs.
package storage

import (
	"context"
	"time"
)

// Gateway is the capability surface the pipeline needs from an object store.
type Gateway interface {
	// Put writes an object and returns its public URL.
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
	// Delete removes an object. Deleting a missing object is an error.
	Delete(ctx context.Context, path string) error
	// SignedURL returns a time-limited retrieval URL for an object.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}
