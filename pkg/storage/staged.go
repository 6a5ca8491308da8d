package storage

import (
	"context"
)

// Staged is a two-phase upload: Stage writes the object, the caller then
// performs its metadata write, and either Commit (keep) or Rollback
// (compensating delete) closes the upload. No orphaned object survives a
// failed metadata write as long as Rollback is called on the failure path.
type Staged struct {
	gw        Gateway
	Path      string
	URL       string
	committed bool
}

// Stage uploads the object and returns a handle that must be closed with
// Commit or Rollback.
func Stage(ctx context.Context, gw Gateway, path string, data []byte, contentType string) (*Staged, error) {
	url, err := gw.Put(ctx, path, data, contentType)
	if err != nil {
		return nil, err
	}
	return &Staged{gw: gw, Path: path, URL: url}, nil
}

// Commit marks the upload as kept. After Commit, Rollback is a no-op.
func (s *Staged) Commit() {
	s.committed = true
}

// Rollback deletes the staged object unless it was committed.
func (s *Staged) Rollback(ctx context.Context) error {
	if s.committed {
		return nil
	}
	return s.gw.Delete(ctx, s.Path)
}
