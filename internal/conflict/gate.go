package conflict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrouter/internal/knowledge"
)

// Gate is the deduplication gate in front of the knowledge partitions.
// Writes are serialized per identity key so two workers learning the same
// fact simultaneously cannot lose an update; readers never observe a
// partially-applied write because the partitions commit atomically.
type Gate struct {
	db     *knowledge.DB
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // (collection, identity key) -> lock
}

// NewGate creates a gate over the knowledge database.
func NewGate(db *knowledge.DB, logger *zap.Logger) (*Gate, error) {
	if db == nil {
		return nil, fmt.Errorf("knowledge database cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		db:     db,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the mutex serializing writes for one identity key.
func (g *Gate) lockFor(collection, key string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := collection + "\x00" + key
	l, ok := g.locks[id]
	if !ok {
		l = &sync.Mutex{}
		g.locks[id] = l
	}
	return l
}

// Ingest routes a candidate fact into its partition.
//
// The sequence is identical for all four partitions:
//  1. Validate; a malformed candidate is rejected with no mutation.
//  2. Fingerprint lookup; an exact duplicate returns the existing id.
//  3. Identity-key lookup; no collision means plain insert.
//  4. Collision: classify contradictions per the severity table. A file
//     rule differing only in its outcome counters is the one exempt
//     delta; it refreshes in place.
//  5. Every other collision resolves by tier comparison, contradiction
//     or not; ties go to a pending ConflictRecord with the existing
//     fact staying authoritative.
//
// Every accepted mutation appends an audit entry with its rationale.
func (g *Gate) Ingest(ctx context.Context, candidate knowledge.Fact) (*Result, error) {
	if candidate == nil {
		return nil, fmt.Errorf("%w: nil candidate", knowledge.ErrValidation)
	}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	partition, err := g.db.PartitionFor(candidate.Collection())
	if err != nil {
		return nil, err
	}

	lock := g.lockFor(partition.Name(), candidate.IdentityKey())
	lock.Lock()
	defer lock.Unlock()

	// Exact duplicate: idempotent, no write.
	if existing, err := partition.GetByFingerprint(ctx, candidate.Fingerprint()); err == nil {
		return &Result{
			Outcome:   OutcomeUnchanged,
			ID:        existing.FactID(),
			Rationale: "exact duplicate by content fingerprint",
		}, nil
	} else if !errors.Is(err, knowledge.ErrNotFound) {
		return nil, err
	}

	existing, err := partition.GetByKey(ctx, candidate.IdentityKey())
	if errors.Is(err, knowledge.ErrNotFound) {
		if err := partition.Insert(ctx, candidate); err != nil {
			return nil, err
		}
		result := &Result{
			Outcome:   OutcomeInserted,
			ID:        candidate.FactID(),
			Rationale: "new identity key, no conflict",
		}
		g.audit(ctx, candidate, result)
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	findings := Classify(existing, candidate)
	if len(findings) == 0 && counterRefresh(existing, candidate) {
		// The learn loop re-ingests a file rule after every routing
		// decision; a counter bump must not have to outrank the rule
		// it refreshes.
		if err := partition.Update(ctx, candidate); err != nil {
			return nil, err
		}
		result := &Result{
			Outcome:   OutcomeUpdated,
			ID:        candidate.FactID(),
			Rationale: "counter refresh on an otherwise identical rule",
		}
		g.audit(ctx, candidate, result)
		return result, nil
	}

	return g.resolveCollision(ctx, partition, existing, candidate, findings)
}

func (g *Gate) resolveCollision(ctx context.Context, partition *knowledge.Partition, existing, candidate knowledge.Fact, findings []Finding) (*Result, error) {
	ctype, severity := knowledge.ConflictContentDivergence, knowledge.SeverityMedium
	rationale := "same identity key with diverging content"
	if len(findings) > 0 {
		ctype, severity = worst(findings)
		rationale = describeFindings(findings)
	}
	action := Resolve(existing.Tier(), candidate.Tier())

	record := &knowledge.ConflictRecord{
		Collection:           partition.Name(),
		Type:                 ctype,
		Severity:             severity,
		ExistingID:           existing.FactID(),
		CandidateFingerprint: candidate.Fingerprint(),
		ExistingSummary:      summarize(existing),
		CandidateSummary:     summarize(candidate),
		Rationale:            rationale,
	}

	var result *Result
	switch action {
	case ActionUpdate:
		record.Resolution = knowledge.ResolutionUpdated
		if err := partition.Update(ctx, candidate); err != nil {
			return nil, err
		}
		result = &Result{
			Outcome: OutcomeUpdated,
			ID:      candidate.FactID(),
			Rationale: fmt.Sprintf("candidate tier %s outranks existing tier %s",
				candidate.Tier(), existing.Tier()),
		}

	case ActionReject:
		record.Resolution = knowledge.ResolutionRejected
		result = &Result{
			Outcome: OutcomeRejected,
			ID:      existing.FactID(),
			Rationale: fmt.Sprintf("existing tier %s outranks candidate tier %s",
				existing.Tier(), candidate.Tier()),
		}

	case ActionHumanReview:
		record.Resolution = knowledge.ResolutionPending
		result = &Result{
			Outcome:   OutcomeQueuedForReview,
			ID:        existing.FactID(),
			Rationale: "equal confidence tiers, existing fact stays authoritative pending review",
		}
	}

	if err := g.db.SaveConflict(ctx, record); err != nil {
		return nil, err
	}
	result.ConflictID = record.ID

	g.logger.Info("conflict detected",
		zap.String("collection", partition.Name()),
		zap.String("type", string(ctype)),
		zap.String("severity", string(severity)),
		zap.String("outcome", string(result.Outcome)),
		zap.String("conflict_id", record.ID))

	g.audit(ctx, candidate, result)
	return result, nil
}

// audit appends the gate's rationale for an accepted outcome. A failed
// audit write is logged, not propagated: the mutation already committed.
func (g *Gate) audit(ctx context.Context, f knowledge.Fact, r *Result) {
	entry := &knowledge.AuditEntry{
		Collection: f.Collection(),
		FactID:     r.ID,
		Action:     string(r.Outcome),
		Rationale:  r.Rationale,
	}
	if err := g.db.AppendAudit(ctx, entry); err != nil {
		g.logger.Warn("audit append failed",
			zap.String("fact_id", r.ID), zap.Error(err))
	}
}

// PendingConflicts lists conflicts awaiting a human decision.
func (g *Gate) PendingConflicts(ctx context.Context) ([]*knowledge.ConflictRecord, error) {
	return g.db.PendingConflicts(ctx)
}

// ResolveConflict applies a human decision to a pending conflict. The
// record is retained either way; resolving never deletes it.
func (g *Gate) ResolveConflict(ctx context.Context, id string, resolution knowledge.ConflictResolution) error {
	return g.db.ResolveConflict(ctx, id, resolution)
}

// counterRefresh reports whether a collision differs only in a file
// rule's success/failure counters and the tier those counters imply.
func counterRefresh(existing, candidate knowledge.Fact) bool {
	ex, ok := existing.(*knowledge.FileTypeRule)
	if !ok {
		return false
	}
	cand, ok := candidate.(*knowledge.FileTypeRule)
	if !ok {
		return false
	}
	return ex.Allowed == cand.Allowed &&
		ex.Security == cand.Security &&
		sameStrings(ex.AssetTypes, cand.AssetTypes) &&
		sameStrings(ex.Categories, cand.Categories)
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func summarize(f knowledge.Fact) string {
	return fmt.Sprintf("%s/%s id=%s tier=%s", f.Collection(), f.IdentityKey(), f.FactID(), f.Tier())
}

func describeFindings(findings []Finding) string {
	details := make([]string, 0, len(findings))
	for _, f := range findings {
		details = append(details, f.Detail)
	}
	return strings.Join(details, "; ")
}
