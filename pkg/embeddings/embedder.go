// Package embeddings
package embeddings

import (
	"context"
	"errors"
)

// ErrEmbedding wraps failures from embedding providers. Enrichment failures
// are non-fatal to ingestion by contract.
var ErrEmbedding = errors.New("embedding error")

// Embedder provides batch text embedding capabilities.
type Embedder interface {
	// EmbedBatch converts texts into vector embeddings, one per input, in
	// input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}
