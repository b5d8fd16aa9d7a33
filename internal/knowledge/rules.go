package knowledge

import (
	"fmt"
	"strings"
	"time"
)

// FileTypeRule governs whether an extension is accepted and under what
// security posture. Success and failure counters feed tier promotion over
// time; the tier itself is what conflict resolution compares.
type FileTypeRule struct {
	ID           string         `json:"id"`
	Extension    string         `json:"extension"` // normalized with leading dot, unique
	Allowed      bool           `json:"is_allowed"`
	Security     SecurityLevel  `json:"security_level"`
	AssetTypes   []string       `json:"asset_types,omitempty"`
	Categories   []string       `json:"document_categories,omitempty"`
	SuccessCount int            `json:"success_count"`
	FailureCount int            `json:"failure_count"`
	Confidence   ConfidenceTier `json:"confidence"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NormalizeExtension lowercases and ensures the leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// FactID implements Fact.
func (r *FileTypeRule) FactID() string { return r.ID }

// Collection implements Fact.
func (r *FileTypeRule) Collection() string { return CollectionFileRules }

// IdentityKey implements Fact. The normalized extension is the identity key.
func (r *FileTypeRule) IdentityKey() string { return NormalizeExtension(r.Extension) }

// Fingerprint implements Fact. The counters are part of the fingerprint
// so a counter bump re-ingested through the gate lands as an update, not
// an exact duplicate.
func (r *FileTypeRule) Fingerprint() string {
	return fingerprint(NormalizeExtension(r.Extension), fmt.Sprintf("%t", r.Allowed),
		string(r.Security), normalizeJoin(r.AssetTypes), normalizeJoin(r.Categories),
		fmt.Sprintf("%d/%d", r.SuccessCount, r.FailureCount), string(r.Confidence))
}

// Tier implements Fact.
func (r *FileTypeRule) Tier() ConfidenceTier { return r.Confidence }

// Validate implements Fact.
func (r *FileTypeRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: file type rule id is required", ErrValidation)
	}
	if NormalizeExtension(r.Extension) == "" || NormalizeExtension(r.Extension) == "." {
		return fmt.Errorf("%w: extension is required", ErrValidation)
	}
	if !r.Security.Valid() {
		return fmt.Errorf("%w: unknown security level %q", ErrValidation, r.Security)
	}
	if r.SuccessCount < 0 || r.FailureCount < 0 {
		return fmt.Errorf("%w: rule counters cannot be negative", ErrValidation)
	}
	return nil
}

// RecordOutcome bumps the success or failure counter and promotes or
// demotes the tier once the evidence is one-sided enough.
func (r *FileTypeRule) RecordOutcome(success bool) {
	if success {
		r.SuccessCount++
	} else {
		r.FailureCount++
	}
	total := r.SuccessCount + r.FailureCount
	if total < 5 {
		r.UpdatedAt = time.Now()
		return
	}
	ratio := float64(r.SuccessCount) / float64(total)
	switch {
	case ratio >= 0.95 && total >= 20:
		r.Confidence = TierHigh
	case ratio >= 0.85:
		r.Confidence = TierMedium
	case ratio >= 0.60:
		r.Confidence = TierLow
	default:
		r.Confidence = TierExperimental
	}
	r.UpdatedAt = time.Now()
}

// ClassificationPattern maps a text pattern to a document category for a
// given asset type. Weight is its specificity; zero means "derive from
// the configured weight table or the length heuristic".
type ClassificationPattern struct {
	ID         string         `json:"id"`
	AssetType  AssetType      `json:"asset_type"`
	Category   string         `json:"category"`
	Pattern    string         `json:"pattern"`
	Weight     float64        `json:"weight,omitempty"`
	Confidence ConfidenceTier `json:"confidence"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// FactID implements Fact.
func (p *ClassificationPattern) FactID() string { return p.ID }

// Collection implements Fact.
func (p *ClassificationPattern) Collection() string { return CollectionPatterns }

// IdentityKey implements Fact. A pattern is identified by asset type plus
// pattern text; two entries differing only in category contradict each
// other and surface as an explicit rule contradiction.
func (p *ClassificationPattern) IdentityKey() string {
	return string(p.AssetType) + "|" + strings.ToLower(strings.TrimSpace(p.Pattern))
}

// Fingerprint implements Fact.
func (p *ClassificationPattern) Fingerprint() string {
	return fingerprint(string(p.AssetType), p.Category, p.Pattern, fmt.Sprintf("%.4f", p.Weight))
}

// Tier implements Fact.
func (p *ClassificationPattern) Tier() ConfidenceTier { return p.Confidence }

// Validate implements Fact.
func (p *ClassificationPattern) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: pattern id is required", ErrValidation)
	}
	if strings.TrimSpace(p.Pattern) == "" {
		return fmt.Errorf("%w: pattern text is required", ErrValidation)
	}
	if p.Category == "" {
		return fmt.Errorf("%w: pattern category is required", ErrValidation)
	}
	if !p.AssetType.Valid() {
		return fmt.Errorf("%w: unknown asset type %q", ErrValidation, p.AssetType)
	}
	return nil
}
