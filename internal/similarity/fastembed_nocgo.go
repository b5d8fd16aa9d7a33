//go:build !cgo

package similarity

import (
	"context"
	"errors"
)

// ErrFastEmbedNotAvailable is returned when the binary was built without
// CGO; the ONNX runtime needs it.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support)")

// FastEmbedConfig holds configuration for the local ONNX embedder.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is unavailable without CGO.
type FastEmbedProvider struct{}

// NewFastEmbedProvider always fails without CGO.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedNotAvailable
}

// EmbedQuery implements Embedder.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

// Close implements the provider lifecycle.
func (p *FastEmbedProvider) Close() error { return nil }
