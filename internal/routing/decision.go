// Package routing turns a classification into a routing decision and
// manages the human review queue. The confidence bands come from the
// canonical threshold table in config; every band check is inclusive
// (>=) so boundary values land in the higher band everywhere.
package routing

import (
	"github.com/fyrsmithlabs/docrouter/internal/config"
)

// Band is the confidence band of a routing decision.
type Band string

const (
	// BandHigh auto-processes with no approval.
	BandHigh Band = "high"

	// BandMedium processes but flags for confirmation.
	BandMedium Band = "medium"

	// BandLow places the attachment in the matched asset's review bucket.
	BandLow Band = "low"

	// BandVeryLow sends the attachment to the general review queue.
	BandVeryLow Band = "very_low"
)

// ReviewReason partitions the general review queue.
type ReviewReason string

const (
	ReasonLowConfidence      ReviewReason = "low_confidence"
	ReasonVeryLowConfidence  ReviewReason = "very_low_confidence"
	ReasonNoAssetMatch       ReviewReason = "no_asset_match"
	ReasonDisallowedFileType ReviewReason = "disallowed_file_type"
	ReasonSecurityThreat     ReviewReason = "security_threat"
)

// Decision is the terminal routing outcome for one attachment.
type Decision struct {
	Band       Band    `json:"band"`
	AssetID    string  `json:"asset_id,omitempty"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`

	// Store is true when the document should be persisted under
	// (asset, category) now; review decisions leave it false.
	Store bool `json:"store"`

	// Flagged marks medium-band decisions needing later confirmation.
	Flagged bool `json:"flagged"`

	// ReviewReason is set for decisions pending human review.
	ReviewReason ReviewReason `json:"review_reason,omitempty"`

	Rationale []string `json:"rationale"`
}

// Decide maps (asset match, confidence) to a decision using the
// threshold table. No asset match routes to the general queue regardless
// of the classifier's confidence.
func Decide(cfg config.RoutingConfig, assetID string, category string, confidence float64, rationale []string) Decision {
	d := Decision{
		AssetID:    assetID,
		Category:   category,
		Confidence: confidence,
		Rationale:  rationale,
	}

	if assetID == "" {
		d.Band = BandVeryLow
		d.ReviewReason = ReasonNoAssetMatch
		return d
	}

	switch {
	case confidence >= cfg.High:
		d.Band = BandHigh
		d.Store = true
	case confidence >= cfg.Medium:
		d.Band = BandMedium
		d.Store = true
		d.Flagged = true
	case confidence >= cfg.Low:
		d.Band = BandLow
		d.ReviewReason = ReasonLowConfidence
	default:
		d.Band = BandVeryLow
		d.ReviewReason = ReasonVeryLowConfidence
	}
	return d
}
