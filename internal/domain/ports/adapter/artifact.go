package adapter

import (
	"context"
	"io"
)

// ArtifactStore persists produced audio and uploaded reference clips.
// Refs are opaque to callers; only the store knows how to resolve them.
type ArtifactStore interface {
	// Save streams content into a new artifact named after name's
	// extension and returns its ref.
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
	Exists(ctx context.Context, ref string) bool
}
