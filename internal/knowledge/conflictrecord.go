package knowledge

import (
	"time"
)

// ConflictType names the contradiction detected between an existing fact
// and an ingest candidate.
type ConflictType string

const (
	ConflictAssetTypeMismatch ConflictType = "asset_type_mismatch"
	ConflictAllowDenyMismatch ConflictType = "allow_deny_mismatch"
	ConflictSecurityMismatch  ConflictType = "security_level_mismatch"
	ConflictSenderOrgMismatch ConflictType = "sender_org_mismatch"
	ConflictRuleContradiction ConflictType = "rule_contradiction"

	// ConflictContentDivergence is an identity-key collision whose fields
	// diverge without hitting the contradiction table: a renamed deal, a
	// changed identifier set. It still resolves by tier.
	ConflictContentDivergence ConflictType = "content_divergence"
)

// ConflictSeverity ranks how urgently a conflict needs attention.
type ConflictSeverity string

const (
	SeverityHigh   ConflictSeverity = "high"
	SeverityMedium ConflictSeverity = "medium"
)

// ConflictResolution is the lifecycle state of a conflict record.
type ConflictResolution string

const (
	ResolutionPending     ConflictResolution = "pending"
	ResolutionUpdated     ConflictResolution = "updated"
	ResolutionRejected    ConflictResolution = "rejected"
	ResolutionHumanReview ConflictResolution = "human_review"
)

// ConflictRecord is the audit trail of a detected contradiction. Records
// are retained regardless of outcome; a contradiction is never resolved
// silently.
type ConflictRecord struct {
	ID                   string             `json:"id"`
	Collection           string             `json:"collection"`
	Type                 ConflictType       `json:"type"`
	Severity             ConflictSeverity   `json:"severity"`
	ExistingID           string             `json:"existing_id"`
	CandidateFingerprint string             `json:"candidate_fingerprint"`
	ExistingSummary      string             `json:"existing_summary"`
	CandidateSummary     string             `json:"candidate_summary"`
	Resolution           ConflictResolution `json:"resolution"`
	Rationale            string             `json:"rationale"`
	CreatedAt            time.Time          `json:"created_at"`
	ResolvedAt           *time.Time         `json:"resolved_at,omitempty"`
}

// AuditEntry records an accepted mutation through the conflict gate,
// with the rationale for why the gate allowed it.
type AuditEntry struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	FactID     string    `json:"fact_id"`
	Action     string    `json:"action"` // inserted, updated, rejected, queued_for_review
	Rationale  string    `json:"rationale"`
	CreatedAt  time.Time `json:"created_at"`
}
