//go:build cgo

package similarity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig holds configuration for the local ONNX embedder.
type FastEmbedConfig struct {
	// Model is the embedding model name, e.g. "BAAI/bge-small-en-v1.5".
	Model string

	// CacheDir is the directory to cache model files.
	// Defaults to ~/.cache/docrouter/models.
	CacheDir string

	// MaxLength is the maximum input sequence length. Defaults to 512.
	MaxLength int
}

// FastEmbedProvider generates embeddings with a local ONNX model.
type FastEmbedProvider struct {
	model *fastembed.FlagEmbedding
	mu    sync.RWMutex
}

var fastembedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// NewFastEmbedProvider creates a local embedding provider. The first call
// downloads the model into the cache directory.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	model, ok := fastembedModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported embed model %q", ErrInvalidConfig, cfg.Model)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache dir: %w", err)
		}
		cacheDir = filepath.Join(home, ".cache", "docrouter", "models")
	}

	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}

	return &FastEmbedProvider{model: flagEmbed}, nil
}

// EmbedQuery generates an embedding for a single text. The "query: "
// prefix follows the BGE model recommendation.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyDocument)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model.QueryEmbed(text)
}

// Close releases the underlying ONNX session.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		return p.model.Destroy()
	}
	return nil
}
