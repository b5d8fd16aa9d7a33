package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrouter/internal/classify"
	"github.com/fyrsmithlabs/docrouter/internal/config"
	"github.com/fyrsmithlabs/docrouter/internal/conflict"
	"github.com/fyrsmithlabs/docrouter/internal/identify"
	"github.com/fyrsmithlabs/docrouter/internal/knowledge"
	"github.com/fyrsmithlabs/docrouter/internal/routing"
	"github.com/fyrsmithlabs/docrouter/internal/similarity"
)

const excerptLimit = 200

// Deps are the collaborators a Service orchestrates. DB, Gate,
// Identifier, Classifier and Queue are required; Scanner, Sink, Lookup
// and Metrics are optional and degrade to no-ops when nil.
type Deps struct {
	Config     *config.Config
	DB         *knowledge.DB
	Gate       *conflict.Gate
	Identifier *identify.Identifier
	Classifier *classify.Classifier
	Queue      *routing.Queue
	Lookup     *similarity.Lookup
	Scanner    SecurityScanner
	Sink       DocumentSink
	Metrics    *Metrics
	Logger     *zap.Logger
}

// Service is the classification pipeline. One attachment flows through
// security scanning, the file-type rule check, asset identification,
// document classification, and routing; accepted decisions write an
// episodic record back through the conflict gate so the system learns
// from its own routing.
type Service struct {
	cfg        *config.Config
	db         *knowledge.DB
	gate       *conflict.Gate
	identifier *identify.Identifier
	classifier *classify.Classifier
	queue      *routing.Queue
	lookup     *similarity.Lookup
	scanner    SecurityScanner
	sink       DocumentSink
	metrics    *Metrics
	logger     *zap.Logger
	boot       *knowledge.Bootstrapper
}

// NewService validates the dependency set and builds the pipeline.
func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("pipeline requires a config")
	case deps.DB == nil:
		return nil, errors.New("pipeline requires a knowledge database")
	case deps.Gate == nil:
		return nil, errors.New("pipeline requires the conflict gate")
	case deps.Identifier == nil:
		return nil, errors.New("pipeline requires an asset identifier")
	case deps.Classifier == nil:
		return nil, errors.New("pipeline requires a classifier")
	case deps.Queue == nil:
		return nil, errors.New("pipeline requires the review queue")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        deps.Config,
		db:         deps.DB,
		gate:       deps.Gate,
		identifier: deps.Identifier,
		classifier: deps.Classifier,
		queue:      deps.Queue,
		lookup:     deps.Lookup,
		scanner:    deps.Scanner,
		sink:       deps.Sink,
		metrics:    deps.Metrics,
		logger:     logger,
		boot:       knowledge.NewBootstrapper(deps.DB, logger),
	}, nil
}

// ClassifyResponse is the terminal result for one attachment.
type ClassifyResponse struct {
	Decision     routing.Decision     `json:"decision"`
	Candidates   []identify.Candidate `json:"candidates,omitempty"`
	ReviewItemID string               `json:"review_item_id,omitempty"`

	// Threat is set when the security scanner flagged the attachment;
	// nothing was classified or stored, and the attachment sits in the
	// general review queue under ReviewItemID.
	Threat string `json:"threat,omitempty"`
}

// ClassifyAttachment runs one attachment through the full pipeline. A
// degraded similarity store never fails the call; an unavailable
// knowledge store fails only this call.
func (s *Service) ClassifyAttachment(ctx context.Context, email *Email, att Attachment) (*ClassifyResponse, error) {
	ctx, span := otel.Tracer("docrouter.pipeline").Start(ctx, "classify_attachment")
	defer span.End()
	span.SetAttributes(attribute.String("filename", att.Filename))

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.classifyDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if email == nil {
		return nil, errors.New("nil email")
	}
	if att.Filename == "" {
		return nil, errors.New("attachment filename is required")
	}

	if s.scanner != nil {
		threat, err := s.scanner.Scan(ctx, att)
		if err != nil {
			return nil, fmt.Errorf("security scan: %w", err)
		}
		if threat != "" {
			s.logger.Warn("attachment blocked by security scan",
				zap.String("filename", att.Filename),
				zap.String("threat", threat))
			// Blocked, never classified, but still surfaced: a flagged
			// attachment lands in the general review queue instead of
			// vanishing.
			id, err := s.queue.Enqueue(ctx, &routing.ReviewItem{
				Reason:   routing.ReasonSecurityThreat,
				Filename: att.Filename,
				Subject:  email.Subject,
				Excerpt:  excerpt(email.Body),
			})
			if err != nil {
				return nil, err
			}
			if s.metrics != nil {
				s.metrics.reviewEnqueued.WithLabelValues(string(routing.ReasonSecurityThreat)).Inc()
			}
			return &ClassifyResponse{
				Threat:       threat,
				ReviewItemID: id,
				Decision: routing.Decision{
					Band:         routing.BandVeryLow,
					ReviewReason: routing.ReasonSecurityThreat,
					Rationale:    []string{"security scan flagged: " + threat},
				},
			}, nil
		}
	}

	rule, err := s.fileRule(ctx, att.Filename)
	if err != nil {
		return nil, err
	}

	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	in := identify.Input{
		Sender:   email.Sender,
		Subject:  email.Subject,
		Body:     email.Body,
		Filename: att.Filename,
	}
	candidates, degraded, err := s.identifier.Identify(ctx, in, cat.assets, cat.senders)
	if err != nil {
		return nil, err
	}
	if degraded && s.metrics != nil {
		s.metrics.similarityDegraded.Inc()
	}

	var assetID string
	var assetType knowledge.AssetType
	if len(candidates) > 0 {
		assetID = candidates[0].AssetID
		assetType = candidates[0].AssetType
	}

	// The extension's rule narrows the candidate categories; a rule with
	// no category list leaves the classifier on its default set.
	var allowedCategories []string
	if rule != nil {
		allowedCategories = rule.Categories
	}

	_, senderKnown := cat.senders[knowledge.NormalizeAddress(email.Sender)]
	classified, err := s.classifier.Classify(ctx, classify.Input{
		AssetType:   assetType,
		Filename:    att.Filename,
		Subject:     email.Subject,
		Body:        email.Body,
		SenderKnown: senderKnown,
	}, allowedCategories, cat.patterns)
	if err != nil {
		return nil, err
	}

	// Overall confidence is the weaker of the two signals: a confident
	// category on an uncertain asset is still an uncertain decision.
	confidence := classified.Confidence
	rationale := classified.Rationale
	if len(candidates) > 0 {
		confidence = math.Min(candidates[0].Confidence, classified.Confidence)
		rationale = append(candidates[0].Rationale, rationale...)
	}

	decision := routing.Decide(s.cfg.Routing, assetID, classified.Category, confidence, rationale)

	// A disallowed extension overrides the confidence bands: the document
	// is never stored automatically, whatever the score.
	if rule != nil && !rule.Allowed {
		decision.Store = false
		decision.Flagged = false
		decision.Band = routing.BandVeryLow
		decision.ReviewReason = routing.ReasonDisallowedFileType
		decision.Rationale = append(decision.Rationale,
			"extension "+rule.IdentityKey()+" is not allowed")
	}

	resp := &ClassifyResponse{Decision: decision, Candidates: candidates}

	// Nothing has been committed yet; a cancelled request stops here.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if decision.Store {
		if s.sink != nil {
			if err := s.sink.Store(ctx, assetID, decision.Category, att); err != nil {
				return nil, fmt.Errorf("store document: %w", err)
			}
		}
	} else if decision.ReviewReason != "" {
		id, err := s.queue.Enqueue(ctx, &routing.ReviewItem{
			Reason:     decision.ReviewReason,
			AssetID:    assetIDForReview(decision),
			Filename:   att.Filename,
			Subject:    email.Subject,
			Excerpt:    excerpt(email.Body),
			Category:   decision.Category,
			AssetType:  string(assetType),
			Confidence: decision.Confidence,
		})
		if err != nil {
			return nil, err
		}
		resp.ReviewItemID = id
		if s.metrics != nil {
			s.metrics.reviewEnqueued.WithLabelValues(string(decision.ReviewReason)).Inc()
		}
	}

	if s.metrics != nil {
		s.metrics.classifications.WithLabelValues(string(decision.Band)).Inc()
	}

	s.learn(ctx, email, att, rule, decision, assetType)

	s.logger.Info("attachment classified",
		zap.String("filename", att.Filename),
		zap.String("asset_id", assetID),
		zap.String("category", decision.Category),
		zap.String("band", string(decision.Band)),
		zap.Float64("confidence", decision.Confidence))
	return resp, nil
}

// learn writes the routing outcome back into the knowledge partitions.
// Write-back failures degrade learning, never the already-made decision.
func (s *Service) learn(ctx context.Context, email *Email, att Attachment, rule *knowledge.FileTypeRule, decision routing.Decision, assetType knowledge.AssetType) {
	if decision.Store {
		rec := knowledge.NewEpisodicRecord(att.Filename, excerpt(email.Subject+" "+email.Body),
			decision.Category, assetType, decision.AssetID,
			decision.Confidence, knowledge.SourceAuto)
		s.indexRecord(ctx, rec)
	}

	if rule != nil {
		rule.RecordOutcome(decision.Store)
		if _, err := s.gate.Ingest(ctx, rule); err != nil {
			s.logger.Warn("file rule counter update failed",
				zap.String("extension", rule.Extension), zap.Error(err))
		}
	}
}

// indexRecord persists an episodic record through the gate and projects
// it into the similarity store.
func (s *Service) indexRecord(ctx context.Context, rec *knowledge.EpisodicRecord) {
	if _, err := s.gate.Ingest(ctx, rec); err != nil {
		s.logger.Warn("episodic record write failed",
			zap.String("filename", rec.Filename), zap.Error(err))
		return
	}
	if s.lookup != nil {
		s.lookup.Index(ctx, similarity.Document{
			ID:      rec.ID,
			Content: rec.SearchText(),
			Metadata: map[string]string{
				"asset_id": rec.AssetID,
				"category": rec.Category,
				"source":   string(rec.Source),
			},
		})
	}
}

// Feedback is a human correction or confirmation of a classification.
type Feedback struct {
	Filename string `json:"filename"`
	Context  string `json:"context,omitempty"`
	Category string `json:"category"`
	AssetID  string `json:"asset_id,omitempty"`
}

// RecordFeedback persists human feedback as a semantic fact plus a
// high-weight episodic record, both through the conflict gate.
func (s *Service) RecordFeedback(ctx context.Context, fb Feedback) (*conflict.Result, error) {
	record := &knowledge.FeedbackRecord{
		ID:        uuid.New().String(),
		Filename:  fb.Filename,
		Context:   fb.Context,
		Category:  fb.Category,
		AssetID:   fb.AssetID,
		CreatedAt: time.Now().UTC(),
	}
	result, err := s.gate.Ingest(ctx, record)
	if err != nil {
		return nil, err
	}

	rec := knowledge.NewEpisodicRecord(fb.Filename, excerpt(fb.Context), fb.Category,
		knowledge.AssetType(""), fb.AssetID, 1.0, knowledge.SourceHumanCorrection)
	s.indexRecord(ctx, rec)

	if s.metrics != nil {
		s.metrics.feedbackRecorded.Inc()
	}
	s.logger.Info("feedback recorded",
		zap.String("filename", fb.Filename),
		zap.String("category", fb.Category),
		zap.String("asset_id", fb.AssetID))
	return result, nil
}

// PendingConflicts lists knowledge conflicts awaiting a human decision.
func (s *Service) PendingConflicts(ctx context.Context) ([]*knowledge.ConflictRecord, error) {
	return s.gate.PendingConflicts(ctx)
}

// ResolveConflict applies a human decision to a pending conflict.
func (s *Service) ResolveConflict(ctx context.Context, id string, resolution knowledge.ConflictResolution) error {
	return s.gate.ResolveConflict(ctx, id, resolution)
}

// PendingReviews lists review items; an empty assetID means all of them.
func (s *Service) PendingReviews(ctx context.Context, assetID string) ([]*routing.ReviewItem, error) {
	return s.queue.Pending(ctx, assetID)
}

// ResolveReview applies a human verdict to a review item. A non-discard
// resolution is treated as feedback and folded back into the knowledge
// partitions.
func (s *Service) ResolveReview(ctx context.Context, id string, res routing.Resolution) (*routing.ReviewItem, error) {
	item, err := s.queue.Resolve(ctx, id, res)
	if err != nil {
		return nil, err
	}
	if !res.Discard {
		if _, err := s.RecordFeedback(ctx, Feedback{
			Filename: item.Filename,
			Context:  strings.TrimSpace(item.Subject + " " + item.Excerpt),
			Category: item.Category,
			AssetID:  item.AssetID,
		}); err != nil {
			s.logger.Warn("review feedback write failed",
				zap.String("item_id", id), zap.Error(err))
		}
	}
	return item, nil
}

// Stats summarizes the knowledge base for operators.
type Stats struct {
	Collections      map[string]int `json:"collections"`
	PendingConflicts int            `json:"pending_conflicts"`
	PendingReviews   int            `json:"pending_reviews"`
	IndexedRecords   int            `json:"indexed_records,omitempty"`
}

// KnowledgeStats reports per-collection counts and queue depths.
func (s *Service) KnowledgeStats(ctx context.Context) (*Stats, error) {
	collections, err := s.db.Stats(ctx)
	if err != nil {
		return nil, err
	}
	conflicts, err := s.gate.PendingConflicts(ctx)
	if err != nil {
		return nil, err
	}
	reviews, err := s.queue.Pending(ctx, "")
	if err != nil {
		return nil, err
	}
	return &Stats{
		Collections:      collections,
		PendingConflicts: len(conflicts),
		PendingReviews:   len(reviews),
	}, nil
}

// Bootstrap seeds the knowledge partitions from YAML files under dir.
// Every seed record passes through the conflict gate.
func (s *Service) Bootstrap(ctx context.Context, dir string) (*knowledge.BootstrapResult, error) {
	return s.boot.Load(ctx, dir, func(ctx context.Context, f knowledge.Fact) (string, error) {
		result, err := s.gate.Ingest(ctx, f)
		if err != nil {
			return "", err
		}
		return result.ID, nil
	})
}

// EvictEpisodic applies the configured age and size caps to the episodic
// log and returns the number of records removed.
func (s *Service) EvictEpisodic(ctx context.Context) (int, error) {
	return s.db.EvictEpisodic(ctx, s.cfg.Episodic.MaxRecords,
		time.Duration(s.cfg.Episodic.MaxAge))
}

// ProcessEmail classifies every attachment of one email with a bounded
// worker pool. Each attachment succeeds or fails independently.
func (s *Service) ProcessEmail(ctx context.Context, email *Email) ([]*ClassifyResponse, error) {
	if email == nil {
		return nil, errors.New("nil email")
	}

	responses := make([]*ClassifyResponse, len(email.Attachments))
	errs := make([]error, len(email.Attachments))

	sem := make(chan struct{}, s.cfg.Pipeline.MaxConcurrentAttachments)
	var wg sync.WaitGroup
	for idx, att := range email.Attachments {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, att Attachment) {
			defer wg.Done()
			defer func() { <-sem }()
			responses[idx], errs[idx] = s.ClassifyAttachment(ctx, email, att)
		}(idx, att)
	}
	wg.Wait()

	return responses, errors.Join(errs...)
}

// Run drains the email source until it is exhausted or the context is
// cancelled, processing emails with a bounded worker pool.
func (s *Service) Run(ctx context.Context, source EmailSource) error {
	if source == nil {
		return errors.New("nil email source")
	}

	sem := make(chan struct{}, s.cfg.Pipeline.MaxConcurrentEmails)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		email, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("email source: %w", err)
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		wg.Add(1)
		go func(email *Email) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := s.ProcessEmail(ctx, email); err != nil {
				s.logger.Error("email processing failed",
					zap.String("sender", email.Sender),
					zap.String("subject", email.Subject),
					zap.Error(err))
			}
		}(email)
	}
}

// catalog is one consistent read of the matching knowledge.
type catalog struct {
	assets   []*knowledge.AssetProfile
	senders  map[string]*knowledge.SenderMapping
	patterns []*knowledge.ClassificationPattern
}

func (s *Service) loadCatalog(ctx context.Context) (*catalog, error) {
	cat := &catalog{senders: make(map[string]*knowledge.SenderMapping)}

	facts, err := s.db.Assets().List(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range facts {
		if a, ok := f.(*knowledge.AssetProfile); ok {
			cat.assets = append(cat.assets, a)
		}
	}

	facts, err = s.db.Senders().List(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range facts {
		if m, ok := f.(*knowledge.SenderMapping); ok {
			cat.senders[m.IdentityKey()] = m
		}
	}

	facts, err = s.db.Patterns().List(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range facts {
		if p, ok := f.(*knowledge.ClassificationPattern); ok {
			cat.patterns = append(cat.patterns, p)
		}
	}
	return cat, nil
}

// fileRule looks up the rule for a filename's extension. No extension or
// no rule yields nil, not an error.
func (s *Service) fileRule(ctx context.Context, filename string) (*knowledge.FileTypeRule, error) {
	ext := knowledge.NormalizeExtension(filepath.Ext(filename))
	if ext == "" || ext == "." {
		return nil, nil
	}
	f, err := s.db.FileRules().GetByKey(ctx, ext)
	if errors.Is(err, knowledge.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rule, ok := f.(*knowledge.FileTypeRule)
	if !ok {
		return nil, fmt.Errorf("unexpected fact type for extension %s", ext)
	}
	return rule, nil
}

// assetIDForReview keeps low-band items in the asset's own bucket and
// everything else in the general queue.
func assetIDForReview(d routing.Decision) string {
	if d.ReviewReason == routing.ReasonLowConfidence {
		return d.AssetID
	}
	return ""
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= excerptLimit {
		return text
	}
	return text[:excerptLimit]
}
