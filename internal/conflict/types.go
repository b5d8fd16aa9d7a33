// Package conflict implements the deduplication gate and conflict
// resolver guarding every write into the knowledge partitions.
//
// The gate is the single mutation path: candidates are validated, checked
// for exact duplicates by content fingerprint, checked for identity-key
// collisions, and finally resolved by confidence-tier comparison. A
// detected contradiction always leaves a ConflictRecord behind, whatever
// the outcome. The same logic applies uniformly to all four partitions.
package conflict

import (
	"github.com/fyrsmithlabs/docrouter/internal/knowledge"
)

// Outcome is the result of one ingest.
type Outcome string

const (
	// OutcomeInserted means the candidate was stored as a new fact.
	OutcomeInserted Outcome = "inserted"

	// OutcomeUpdated means the candidate overwrote the existing fact.
	OutcomeUpdated Outcome = "updated"

	// OutcomeRejected means the existing fact stays; the candidate is dropped.
	OutcomeRejected Outcome = "rejected"

	// OutcomeQueuedForReview means tiers tied: the existing fact stays
	// authoritative and a pending ConflictRecord awaits a human.
	OutcomeQueuedForReview Outcome = "queued_for_review"

	// OutcomeUnchanged means the candidate was an exact duplicate of a
	// stored fact; the existing id is returned and nothing is written.
	OutcomeUnchanged Outcome = "unchanged"
)

// Result reports what the gate did with a candidate.
type Result struct {
	Outcome Outcome `json:"outcome"`

	// ID is the id of the authoritative stored fact after the ingest:
	// the candidate's for inserted/updated, the existing fact's otherwise.
	ID string `json:"id"`

	// ConflictID is set when a ConflictRecord was created.
	ConflictID string `json:"conflict_id,omitempty"`

	// Rationale explains the decision, mirrored into the audit log.
	Rationale string `json:"rationale"`
}

// Finding is one contradiction detected between an existing fact and a
// candidate sharing its identity key.
type Finding struct {
	Type     knowledge.ConflictType
	Severity knowledge.ConflictSeverity
	Detail   string
}

// Action is the resolver's verdict for a contradicted identity key.
type Action int

const (
	ActionUpdate Action = iota
	ActionReject
	ActionHumanReview
)
