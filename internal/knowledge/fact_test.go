package knowledge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAsset() *AssetProfile {
	now := time.Now()
	return &AssetProfile{
		ID:          "asset-i3",
		DealName:    "Project I3",
		AssetName:   "I3 Holdings",
		Type:        AssetTypeCredit,
		Identifiers: []string{"i3", "project i3"},
		Confidence:  TierHigh,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestAssetProfile_Fingerprint_Stable(t *testing.T) {
	a := validAsset()
	b := validAsset()
	// Identifier order must not change the fingerprint.
	b.Identifiers = []string{"Project I3", " i3 "}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.DealName = "Project I4"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestAssetProfile_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AssetProfile)
		wantOK bool
	}{
		{"valid", func(a *AssetProfile) {}, true},
		{"missing id", func(a *AssetProfile) { a.ID = "" }, false},
		{"missing deal name", func(a *AssetProfile) { a.DealName = "" }, false},
		{"unknown asset type", func(a *AssetProfile) { a.Type = "hedge_fund" }, false},
		{"no identifiers", func(a *AssetProfile) { a.Identifiers = nil }, false},
		{"blank identifier", func(a *AssetProfile) { a.Identifiers = []string{" "} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAsset()
			tt.mutate(a)
			err := a.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrValidation)
			}
		})
	}
}

func TestCheckIdentifierDisjointness(t *testing.T) {
	a := validAsset()
	b := validAsset()
	b.ID = "asset-other"
	b.Identifiers = []string{"otherco"}

	require.NoError(t, CheckIdentifierDisjointness([]*AssetProfile{a, b}))

	b.Identifiers = append(b.Identifiers, "I3 ") // normalizes to a's identifier
	err := CheckIdentifierDisjointness([]*AssetProfile{a, b})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "i3")
}

func TestSenderMapping_IdentityKey_Normalized(t *testing.T) {
	m := &SenderMapping{
		ID:         "s1",
		Address:    "  Reports@LenderCo.COM ",
		AssetIDs:   []string{"asset-i3"},
		TrustScore: 0.9,
	}
	require.NoError(t, m.Validate())
	assert.Equal(t, "reports@lenderco.com", m.IdentityKey())
}

func TestSenderMapping_Validate_TrustBounds(t *testing.T) {
	m := &SenderMapping{ID: "s1", Address: "a@b.co", AssetIDs: []string{"x"}, TrustScore: 1.2}
	assert.ErrorIs(t, m.Validate(), ErrValidation)
	m.TrustScore = -0.1
	assert.ErrorIs(t, m.Validate(), ErrValidation)
}

func TestNormalizeExtension(t *testing.T) {
	assert.Equal(t, ".pdf", NormalizeExtension("PDF"))
	assert.Equal(t, ".pdf", NormalizeExtension(".pdf"))
	assert.Equal(t, "", NormalizeExtension("  "))
}

func TestFileTypeRule_IdentityCollision(t *testing.T) {
	a := &FileTypeRule{ID: "r1", Extension: "pdf", Allowed: true, Security: SecuritySafe}
	b := &FileTypeRule{ID: "r2", Extension: ".PDF", Allowed: false, Security: SecuritySafe}
	assert.Equal(t, a.IdentityKey(), b.IdentityKey())
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestFileTypeRule_RecordOutcome_Promotion(t *testing.T) {
	r := &FileTypeRule{ID: "r1", Extension: ".xlsx", Allowed: true, Security: SecuritySafe}

	// Below the sample floor nothing changes.
	for i := 0; i < 4; i++ {
		r.RecordOutcome(true)
	}
	assert.Equal(t, TierExperimental, r.Confidence)

	// Five one-sided samples reach medium; high needs twenty.
	r.RecordOutcome(true)
	assert.Equal(t, TierMedium, r.Confidence)

	for i := 0; i < 15; i++ {
		r.RecordOutcome(true)
	}
	assert.Equal(t, TierHigh, r.Confidence)
}

func TestFileTypeRule_RecordOutcome_Demotion(t *testing.T) {
	r := &FileTypeRule{ID: "r1", Extension: ".zip", Allowed: true, Security: SecurityRestricted,
		Confidence: TierHigh}
	for i := 0; i < 10; i++ {
		r.RecordOutcome(false)
	}
	assert.Equal(t, TierExperimental, r.Confidence)
}

func TestClassificationPattern_IdentityKey(t *testing.T) {
	a := &ClassificationPattern{ID: "p1", AssetType: AssetTypeCredit,
		Category: "loan_documents", Pattern: "Capital Call"}
	b := &ClassificationPattern{ID: "p2", AssetType: AssetTypeCredit,
		Category: "financial_statements", Pattern: "capital call"}

	// Same pattern text pointing at different categories collides.
	assert.Equal(t, a.IdentityKey(), b.IdentityKey())

	c := &ClassificationPattern{ID: "p3", AssetType: AssetTypeRealEstate,
		Category: "loan_documents", Pattern: "capital call"}
	assert.NotEqual(t, a.IdentityKey(), c.IdentityKey())
}

func TestParseTier_RoundTrip(t *testing.T) {
	for _, tier := range []ConfidenceTier{TierExperimental, TierLow, TierMedium, TierHigh} {
		assert.Equal(t, tier, ParseTier(tier.String()))
	}
	assert.Equal(t, TierExperimental, ParseTier("bogus"))
}

func TestNewEpisodicRecord_TierBySource(t *testing.T) {
	auto := NewEpisodicRecord("a.pdf", "q3 statement", "financial_statements",
		AssetTypeCredit, "asset-i3", 0.9, SourceAuto)
	corr := NewEpisodicRecord("a.pdf", "q3 statement", "financial_statements",
		AssetTypeCredit, "asset-i3", 1.0, SourceHumanCorrection)

	assert.Equal(t, TierLow, auto.Tier())
	assert.Equal(t, TierHigh, corr.Tier())
	require.NoError(t, auto.Validate())
	require.NoError(t, corr.Validate())
}
