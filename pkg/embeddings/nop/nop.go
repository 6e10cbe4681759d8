// Package nop provides a no-op embedder for disabled-enrichment mode and tests.
package nop

import (
	"context"

	"github.com/papercomputeco/engram/pkg/embeddings"
)

// Embedder returns no embeddings for any input.
type Embedder struct{}

// NewEmbedder creates a new no-op embedder.
func NewEmbedder() *Embedder {
	return &Embedder{}
}

// EmbedBatch returns a nil vector per input.
func (e *Embedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

// Close is a no-op.
func (e *Embedder) Close() error {
	return nil
}

// Ensure Embedder implements embeddings.Embedder
var _ embeddings.Embedder = (*Embedder)(nil)
