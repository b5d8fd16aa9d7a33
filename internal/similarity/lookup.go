package similarity

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Lookup wraps a Store with the pipeline's degradation contract: every
// recall is bounded by a timeout, and a lookup that times out or fails
// yields an empty result instead of an error. Classification never blocks
// on episodic recall.
type Lookup struct {
	store    Store
	timeout  time.Duration
	minScore float64
	logger   *zap.Logger
}

// NewLookup creates a degrading lookup over the store.
func NewLookup(store Store, timeout time.Duration, minScore float64, logger *zap.Logger) *Lookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lookup{
		store:    store,
		timeout:  timeout,
		minScore: minScore,
		logger:   logger,
	}
}

// Recall returns up to k neighbors of the query. The second return value
// is true when the lookup degraded (timeout or store failure) and the
// caller is proceeding without the similarity signal.
func (l *Lookup) Recall(ctx context.Context, query string, k int) ([]SearchResult, bool) {
	if l.store == nil || query == "" {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	type outcome struct {
		results []SearchResult
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		results, err := l.store.Search(ctx, query, k, l.minScore)
		ch <- outcome{results, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				l.logger.Warn("similarity lookup timed out",
					zap.Duration("timeout", l.timeout))
			} else {
				l.logger.Warn("similarity lookup failed", zap.Error(out.err))
			}
			return nil, true
		}
		return out.results, false
	case <-ctx.Done():
		l.logger.Warn("similarity lookup timed out",
			zap.Duration("timeout", l.timeout))
		return nil, true
	}
}

// Index adds an episodic record's text to the store. Indexing failures
// are logged, not propagated: recall quality degrades but routing works.
func (l *Lookup) Index(ctx context.Context, doc Document) {
	if l.store == nil {
		return
	}
	if err := l.store.Add(ctx, doc); err != nil {
		l.logger.Warn("episodic indexing failed",
			zap.String("id", doc.ID), zap.Error(err))
	}
}
