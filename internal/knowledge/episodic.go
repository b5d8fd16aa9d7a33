package knowledge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EpisodicRecord captures one past routing decision or human correction.
// The episodic log is append-only: records are never updated, only evicted
// by the age and size caps, and correction records are evicted last.
type EpisodicRecord struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	Excerpt    string         `json:"excerpt"` // subject/body excerpt
	Category   string         `json:"category"`
	AssetType  AssetType      `json:"asset_type"`
	AssetID    string         `json:"asset_id"`
	Confidence float64        `json:"confidence"` // [0,1]
	Source     RecordSource   `json:"source"`
	SourceTier ConfidenceTier `json:"tier"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewEpisodicRecord builds a record for the current moment. Corrections
// get TierHigh so the gate and the eviction job both favor them.
func NewEpisodicRecord(filename, excerpt, category string, assetType AssetType, assetID string, confidence float64, source RecordSource) *EpisodicRecord {
	tier := TierLow
	if source == SourceHumanCorrection {
		tier = TierHigh
	}
	return &EpisodicRecord{
		ID:         uuid.New().String(),
		Filename:   filename,
		Excerpt:    excerpt,
		Category:   category,
		AssetType:  assetType,
		AssetID:    assetID,
		Confidence: confidence,
		Source:     source,
		SourceTier: tier,
		Timestamp:  time.Now(),
	}
}

// SearchText is the text embedded for similarity recall.
func (e *EpisodicRecord) SearchText() string {
	return e.Filename + " " + e.Excerpt
}

// FactID implements Fact.
func (e *EpisodicRecord) FactID() string { return e.ID }

// Collection implements Fact.
func (e *EpisodicRecord) Collection() string { return CollectionEpisodic }

// IdentityKey implements Fact. Episodic records are never coalesced by
// key, so the id itself is the identity.
func (e *EpisodicRecord) IdentityKey() string { return e.ID }

// Fingerprint implements Fact.
func (e *EpisodicRecord) Fingerprint() string {
	return fingerprint(e.Filename, e.Excerpt, e.Category, string(e.AssetType), e.AssetID,
		string(e.Source), fmt.Sprintf("%.4f", e.Confidence))
}

// Tier implements Fact.
func (e *EpisodicRecord) Tier() ConfidenceTier { return e.SourceTier }

// Validate implements Fact.
func (e *EpisodicRecord) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: episodic record id is required", ErrValidation)
	}
	if e.Filename == "" {
		return fmt.Errorf("%w: episodic record filename is required", ErrValidation)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be in [0, 1], got %v", ErrValidation, e.Confidence)
	}
	if e.Source != SourceAuto && e.Source != SourceHumanCorrection {
		return fmt.Errorf("%w: unknown record source %q", ErrValidation, e.Source)
	}
	return nil
}

// FeedbackRecord is the semantic fact written when a human corrects or
// confirms a classification. It is what record_feedback persists beyond
// the episodic trace.
type FeedbackRecord struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Context   string    `json:"context"`
	Category  string    `json:"category"`
	AssetID   string    `json:"asset_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FactID implements Fact.
func (f *FeedbackRecord) FactID() string { return f.ID }

// Collection implements Fact.
func (f *FeedbackRecord) Collection() string { return CollectionFeedback }

// IdentityKey implements Fact.
func (f *FeedbackRecord) IdentityKey() string { return f.ID }

// Fingerprint implements Fact.
func (f *FeedbackRecord) Fingerprint() string {
	return fingerprint(f.Filename, f.Context, f.Category, f.AssetID)
}

// Tier implements Fact. Human feedback is always authoritative.
func (f *FeedbackRecord) Tier() ConfidenceTier { return TierHigh }

// Validate implements Fact.
func (f *FeedbackRecord) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: feedback id is required", ErrValidation)
	}
	if f.Filename == "" {
		return fmt.Errorf("%w: feedback filename is required", ErrValidation)
	}
	if f.Category == "" {
		return fmt.Errorf("%w: feedback category is required", ErrValidation)
	}
	return nil
}
