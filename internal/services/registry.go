package services

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrouter/internal/classify"
	"github.com/fyrsmithlabs/docrouter/internal/config"
	"github.com/fyrsmithlabs/docrouter/internal/conflict"
	"github.com/fyrsmithlabs/docrouter/internal/identify"
	"github.com/fyrsmithlabs/docrouter/internal/knowledge"
	"github.com/fyrsmithlabs/docrouter/internal/pipeline"
	"github.com/fyrsmithlabs/docrouter/internal/routing"
	"github.com/fyrsmithlabs/docrouter/internal/scan"
	"github.com/fyrsmithlabs/docrouter/internal/similarity"
)

// Registry provides access to all docrouter services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Pipeline() *pipeline.Service
	Gate() *conflict.Gate
	Knowledge() *knowledge.DB
	Queue() *routing.Queue
	Similarity() similarity.Store

	// Close releases the knowledge database and the similarity store.
	Close() error
}

// Options configures the registry with service instances.
type Options struct {
	Pipeline   *pipeline.Service
	Gate       *conflict.Gate
	Knowledge  *knowledge.DB
	Queue      *routing.Queue
	Similarity similarity.Store
	Embedder   *similarity.FastEmbedProvider
	Logger     *zap.Logger
}

// registry is the concrete implementation of Registry.
type registry struct {
	pipeline   *pipeline.Service
	gate       *conflict.Gate
	knowledge  *knowledge.DB
	queue      *routing.Queue
	similarity similarity.Store
	embedder   *similarity.FastEmbedProvider
	logger     *zap.Logger
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registry{
		pipeline:   opts.Pipeline,
		gate:       opts.Gate,
		knowledge:  opts.Knowledge,
		queue:      opts.Queue,
		similarity: opts.Similarity,
		embedder:   opts.Embedder,
		logger:     logger,
	}
}

func (r *registry) Pipeline() *pipeline.Service  { return r.pipeline }
func (r *registry) Gate() *conflict.Gate         { return r.gate }
func (r *registry) Knowledge() *knowledge.DB     { return r.knowledge }
func (r *registry) Queue() *routing.Queue        { return r.queue }
func (r *registry) Similarity() similarity.Store { return r.similarity }

func (r *registry) Close() error {
	var firstErr error
	if r.similarity != nil {
		if err := r.similarity.Close(); err != nil {
			firstErr = err
		}
	}
	if r.embedder != nil {
		if err := r.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.knowledge != nil {
		if err := r.knowledge.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BuildOptions tweaks Build for different entry points.
type BuildOptions struct {
	// Scanner and Sink are the deployment's external integrations; both
	// may be nil.
	Scanner pipeline.SecurityScanner
	Sink    pipeline.DocumentSink

	// Registerer receives the pipeline metrics. Nil means the Prometheus
	// default registry.
	Registerer prometheus.Registerer
}

// Build constructs the full object graph from configuration. A failed
// embedder initialization disables similarity recall and is logged, not
// fatal; classification works without the signal.
func Build(cfg *config.Config, logger *zap.Logger, opts BuildOptions) (Registry, error) {
	db, err := knowledge.Open(cfg.Storage.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open knowledge database: %w", err)
	}

	gate, err := conflict.NewGate(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	var (
		store    similarity.Store
		embedder *similarity.FastEmbedProvider
		lookup   *similarity.Lookup
	)
	embedder, err = similarity.NewFastEmbedProvider(similarity.FastEmbedConfig{
		Model: cfg.Similarity.EmbedModel,
	})
	if err != nil {
		logger.Warn("embedder unavailable, similarity recall disabled", zap.Error(err))
		embedder = nil
	} else {
		store, err = similarity.NewChromemStore(similarity.ChromemConfig{
			Path:       cfg.Similarity.Path,
			Collection: cfg.Similarity.Collection,
		}, embedder, logger)
		if err != nil {
			embedder.Close()
			db.Close()
			return nil, fmt.Errorf("open similarity store: %w", err)
		}
		lookup = similarity.NewLookup(store, time.Duration(cfg.Similarity.LookupTimeout),
			cfg.Similarity.MinSimilarity, logger)
	}

	queue := routing.NewQueue(db.SQL(), logger)

	// The built-in rule scanner is the default; deployments with an
	// antivirus gateway inject their own through BuildOptions.
	scanner := opts.Scanner
	if scanner == nil && !cfg.Scan.Disabled {
		scanner = scan.MustNew(nil)
	}

	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	svc, err := pipeline.NewService(pipeline.Deps{
		Config:     cfg,
		DB:         db,
		Gate:       gate,
		Identifier: identify.New(cfg.Identify, lookup, logger),
		Classifier: classify.New(cfg.Classify, logger),
		Queue:      queue,
		Lookup:     lookup,
		Scanner:    scanner,
		Sink:       opts.Sink,
		Metrics:    pipeline.NewMetrics(registerer),
		Logger:     logger,
	})
	if err != nil {
		if store != nil {
			store.Close()
		}
		db.Close()
		return nil, err
	}

	return NewRegistry(Options{
		Pipeline:   svc,
		Gate:       gate,
		Knowledge:  db,
		Queue:      queue,
		Similarity: store,
		Embedder:   embedder,
		Logger:     logger,
	}), nil
}
