// Package knowledge defines the data model and persistence for docrouter's
// four knowledge partitions: semantic facts, procedural rules, episodic
// experience, and sender trust mappings.
//
// Every stored item implements Fact. Facts carry a content fingerprint for
// exact-duplicate detection and an identity key that is unique within its
// collection. All writes go through the conflict gate; nothing mutates a
// partition directly.
package knowledge

import (
	"errors"
	"strings"
)

// Common errors for knowledge operations.
var (
	ErrNotFound          = errors.New("fact not found")
	ErrValidation        = errors.New("invalid fact")
	ErrDuplicateIdentity = errors.New("identity key already exists")
	ErrStorage           = errors.New("knowledge storage unavailable")
)

// AssetType classifies an investment vehicle.
type AssetType string

const (
	AssetTypePrivateEquity  AssetType = "private_equity"
	AssetTypeRealEstate     AssetType = "real_estate"
	AssetTypeInfrastructure AssetType = "infrastructure"
	AssetTypeCredit         AssetType = "credit"
)

// Valid reports whether the asset type is a known value.
func (t AssetType) Valid() bool {
	switch t {
	case AssetTypePrivateEquity, AssetTypeRealEstate, AssetTypeInfrastructure, AssetTypeCredit:
		return true
	}
	return false
}

// SecurityLevel classifies the risk of a file extension.
type SecurityLevel string

const (
	SecuritySafe       SecurityLevel = "safe"
	SecurityRestricted SecurityLevel = "restricted"
	SecurityDangerous  SecurityLevel = "dangerous"
)

// Valid reports whether the security level is a known value.
func (s SecurityLevel) Valid() bool {
	switch s {
	case SecuritySafe, SecurityRestricted, SecurityDangerous:
		return true
	}
	return false
}

// ConfidenceTier is the ordinal confidence level attached to stored facts.
// Conflict resolution compares tiers: a candidate wins only when its tier
// exceeds the existing tier by at least one full step.
type ConfidenceTier int

const (
	TierExperimental ConfidenceTier = iota
	TierLow
	TierMedium
	TierHigh
)

var tierNames = map[ConfidenceTier]string{
	TierExperimental: "experimental",
	TierLow:          "low",
	TierMedium:       "medium",
	TierHigh:         "high",
}

// String returns the tier's wire name.
func (t ConfidenceTier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return "experimental"
}

// ParseTier converts a wire name to a ConfidenceTier.
// Unknown names map to TierExperimental.
func ParseTier(s string) ConfidenceTier {
	for tier, name := range tierNames {
		if name == strings.ToLower(strings.TrimSpace(s)) {
			return tier
		}
	}
	return TierExperimental
}

// RecordSource distinguishes how an episodic record was produced.
type RecordSource string

const (
	SourceAuto            RecordSource = "auto"
	SourceHumanCorrection RecordSource = "human_correction"
)

// Collection names. Semantic spans assets, file-type rules, and feedback;
// the remaining partitions each hold one collection.
const (
	CollectionAssets    = "assets"
	CollectionFileRules = "file_type_rules"
	CollectionFeedback  = "feedback"
	CollectionPatterns  = "classification_patterns"
	CollectionEpisodic  = "episodic_records"
	CollectionSenders   = "sender_mappings"
)

// Collections lists every collection, in stats display order.
func Collections() []string {
	return []string{
		CollectionAssets,
		CollectionFileRules,
		CollectionFeedback,
		CollectionPatterns,
		CollectionEpisodic,
		CollectionSenders,
	}
}
