// Package similarity provides nearest-neighbor recall over past routing
// decisions. The embedded chromem-go store is the default provider; the
// embedding model sits behind the Embedder interface.
package similarity

import (
	"context"
	"errors"
)

// Sentinel errors for similarity operations.
var (
	ErrInvalidConfig  = errors.New("invalid similarity configuration")
	ErrEmptyDocument  = errors.New("empty document")
	ErrLookupTimedOut = errors.New("similarity lookup timed out")
)

// Document is one episodic record projected into the vector store.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// SearchResult is one nearest neighbor with its similarity score.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64 // cosine similarity in [0,1]
	Metadata map[string]string
}

// Embedder generates vector embeddings from text. Implementations can use
// local ONNX models or remote APIs; the pipeline treats this as a consumed
// capability.
type Embedder interface {
	// EmbedQuery generates an embedding for a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the nearest-neighbor index over episodic records.
type Store interface {
	// Add indexes a document. Re-adding the same ID overwrites it.
	Add(ctx context.Context, doc Document) error

	// Search returns up to k neighbors of the query text with score >=
	// minScore, ordered by score descending.
	Search(ctx context.Context, query string, k int, minScore float64) ([]SearchResult, error)

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)

	// Close releases store resources.
	Close() error
}
