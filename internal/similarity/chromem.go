package similarity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("docrouter.similarity.chromem")

// ChromemConfig holds configuration for the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means in-memory.
	Path string

	// Collection is the collection holding episodic records.
	Collection string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "episodic_records"
	}
}

// ChromemStore implements Store using chromem-go, an embeddable vector
// database with no external server.
type ChromemStore struct {
	db       *chromem.DB
	config   ChromemConfig
	embedder Embedder
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewChromemStore creates a chromem-backed similarity store.
func NewChromemStore(cfg ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	cfg.ApplyDefaults()
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder cannot be nil", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	var err error
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path := expandHome(cfg.Path)
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("create vectorstore directory: %w", err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem database: %w", err)
		}
	}

	return &ChromemStore{
		db:       db,
		config:   cfg,
		embedder: embedder,
		logger:   logger,
	}, nil
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	return s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
}

// Add indexes a document.
func (s *ChromemStore) Add(ctx context.Context, doc Document) error {
	ctx, span := tracer.Start(ctx, "ChromemStore.Add")
	defer span.End()

	if strings.TrimSpace(doc.Content) == "" {
		return ErrEmptyDocument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("get collection: %w", err)
	}

	err = collection.AddDocuments(ctx, []chromem.Document{{
		ID:       doc.ID,
		Content:  doc.Content,
		Metadata: doc.Metadata,
	}}, 1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("add document: %w", err)
	}

	s.logger.Debug("indexed episodic document", zap.String("id", doc.ID))
	return nil
}

// Search returns neighbors of the query above minScore.
func (s *ChromemStore) Search(ctx context.Context, query string, k int, minScore float64) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("get collection: %w", err)
	}

	// chromem requires nResults <= document count.
	count := collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query collection: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if float64(r.Similarity) < minScore {
			continue
		}
		out = append(out, SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    float64(r.Similarity),
			Metadata: r.Metadata,
		})
	}

	span.SetAttributes(attribute.Int("results_count", len(out)))
	return out, nil
}

// Count returns the number of indexed documents.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	collection, err := s.collection()
	if err != nil {
		return 0, fmt.Errorf("get collection: %w", err)
	}
	return collection.Count(), nil
}

// Close releases store resources. chromem persists on write, so there is
// nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
