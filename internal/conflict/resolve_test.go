package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docrouter/internal/knowledge"
)

func TestResolve_PureTierComparison(t *testing.T) {
	tests := []struct {
		name      string
		existing  knowledge.ConfidenceTier
		candidate knowledge.ConfidenceTier
		want      Action
	}{
		{"candidate one tier above wins", knowledge.TierLow, knowledge.TierMedium, ActionUpdate},
		{"candidate far above wins", knowledge.TierExperimental, knowledge.TierHigh, ActionUpdate},
		{"candidate below loses", knowledge.TierHigh, knowledge.TierMedium, ActionReject},
		{"equal tiers go to review", knowledge.TierMedium, knowledge.TierMedium, ActionHumanReview},
		{"equal high tiers go to review", knowledge.TierHigh, knowledge.TierHigh, ActionHumanReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.existing, tt.candidate))
		})
	}
}

func TestClassify_AssetTypeMismatch(t *testing.T) {
	existing := &knowledge.AssetProfile{ID: "a", DealName: "Deal", Type: knowledge.AssetTypeCredit,
		Identifiers: []string{"a"}}
	candidate := &knowledge.AssetProfile{ID: "a", DealName: "Deal", Type: knowledge.AssetTypeRealEstate,
		Identifiers: []string{"a"}}

	findings := Classify(existing, candidate)
	require.Len(t, findings, 1)
	assert.Equal(t, knowledge.ConflictAssetTypeMismatch, findings[0].Type)
	assert.Equal(t, knowledge.SeverityHigh, findings[0].Severity)
}

func TestClassify_FileRuleMismatches(t *testing.T) {
	existing := &knowledge.FileTypeRule{ID: "r1", Extension: ".pdf", Allowed: false,
		Security: knowledge.SecurityRestricted}
	candidate := &knowledge.FileTypeRule{ID: "r2", Extension: ".pdf", Allowed: true,
		Security: knowledge.SecuritySafe}

	findings := Classify(existing, candidate)
	require.Len(t, findings, 2)

	ctype, severity := worst(findings)
	assert.Equal(t, knowledge.ConflictAllowDenyMismatch, ctype)
	assert.Equal(t, knowledge.SeverityHigh, severity)
}

func TestClassify_SenderOrgMismatch(t *testing.T) {
	existing := &knowledge.SenderMapping{ID: "s1", Address: "a@b.co", AssetIDs: []string{"x"},
		Organization: "LenderCo"}
	candidate := &knowledge.SenderMapping{ID: "s2", Address: "a@b.co", AssetIDs: []string{"x"},
		Organization: "OtherCo"}

	findings := Classify(existing, candidate)
	require.Len(t, findings, 1)
	assert.Equal(t, knowledge.ConflictSenderOrgMismatch, findings[0].Type)
	assert.Equal(t, knowledge.SeverityMedium, findings[0].Severity)

	// A missing organization on either side is not a contradiction.
	candidate.Organization = ""
	assert.Empty(t, Classify(existing, candidate))
}

func TestClassify_PatternContradiction(t *testing.T) {
	existing := &knowledge.ClassificationPattern{ID: "p1", AssetType: knowledge.AssetTypeCredit,
		Category: "loan_documents", Pattern: "capital call"}
	candidate := &knowledge.ClassificationPattern{ID: "p2", AssetType: knowledge.AssetTypeCredit,
		Category: "correspondence", Pattern: "capital call"}

	findings := Classify(existing, candidate)
	require.Len(t, findings, 1)
	assert.Equal(t, knowledge.ConflictRuleContradiction, findings[0].Type)
	assert.Equal(t, knowledge.SeverityHigh, findings[0].Severity)
}

func TestClassify_NoContradiction(t *testing.T) {
	existing := &knowledge.AssetProfile{ID: "a", DealName: "Deal", Type: knowledge.AssetTypeCredit,
		Identifiers: []string{"a"}}
	candidate := &knowledge.AssetProfile{ID: "a", DealName: "Deal Renamed", Type: knowledge.AssetTypeCredit,
		Identifiers: []string{"a", "extra"}}

	// Renames and added identifiers fire nothing in the contradiction
	// table; the gate still runs the tier comparison on them.
	assert.Empty(t, Classify(existing, candidate))
}
