package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrouter/internal/config"
	"github.com/fyrsmithlabs/docrouter/internal/knowledge"
)

func newClassifier() *Classifier {
	return New(config.Default().Classify, zap.NewNop())
}

func testPatterns() []*knowledge.ClassificationPattern {
	return []*knowledge.ClassificationPattern{
		{ID: "p1", AssetType: knowledge.AssetTypeCredit, Category: "loan_documents",
			Pattern: "capital call", Weight: 0.9},
		{ID: "p2", AssetType: knowledge.AssetTypeCredit, Category: "financial_statements",
			Pattern: "balance sheet", Weight: 0.8},
		{ID: "p3", AssetType: knowledge.AssetTypeRealEstate, Category: "investor_reports",
			Pattern: "capital call", Weight: 0.9},
	}
}

func TestClassifier_PatternMatch(t *testing.T) {
	c := newClassifier()

	result, err := c.Classify(context.Background(), Input{
		AssetType: knowledge.AssetTypeCredit,
		Filename:  "i3_capital_call_q3.pdf",
		Subject:   "Capital Call Notice",
	}, nil, testPatterns())
	require.NoError(t, err)

	assert.Equal(t, "loan_documents", result.Category)
	assert.Greater(t, result.Confidence, 0.6)
	assert.NotEmpty(t, result.Rationale)
}

func TestClassifier_PatternsFilteredByAssetType(t *testing.T) {
	c := newClassifier()

	// The same pattern text maps elsewhere for real estate assets.
	result, err := c.Classify(context.Background(), Input{
		AssetType: knowledge.AssetTypeRealEstate,
		Filename:  "capital_call.pdf",
	}, nil, testPatterns())
	require.NoError(t, err)
	assert.Equal(t, "investor_reports", result.Category)
}

func TestClassifier_NoPatternFallsBack(t *testing.T) {
	c := newClassifier()

	result, err := c.Classify(context.Background(), Input{
		AssetType: knowledge.AssetTypeCredit,
		Filename:  "scan0001.tif",
	}, nil, testPatterns())
	require.NoError(t, err)

	assert.Equal(t, "uncategorized", result.Category)
	assert.InDelta(t, 0.30, result.Confidence, 0.001)
	assert.Contains(t, result.Rationale, "no pattern fired, default category")
}

func TestClassifier_UnknownAssetTypeUsesDefaults(t *testing.T) {
	c := newClassifier()

	result, err := c.Classify(context.Background(), Input{
		AssetType: "hedge_fund",
		Filename:  "statement.pdf",
	}, nil, testPatterns())
	require.NoError(t, err)

	// Degraded, not fatal; the rationale records the fallback.
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Rationale)
}

func TestClassifier_BusinessRuleAdjustments(t *testing.T) {
	c := newClassifier()

	bare, err := c.Classify(context.Background(), Input{
		AssetType: knowledge.AssetTypeCredit,
		Filename:  "capital_call.tif",
	}, nil, testPatterns())
	require.NoError(t, err)

	boosted, err := c.Classify(context.Background(), Input{
		AssetType:   knowledge.AssetTypeCredit,
		Filename:    "capital_call_statement.pdf", // professional keyword + document format
		Subject:     "Quarterly capital call notice",
		SenderKnown: true,
	}, nil, testPatterns())
	require.NoError(t, err)

	assert.Equal(t, bare.Category, boosted.Category)
	assert.Greater(t, boosted.Confidence, bare.Confidence)
}

func TestClassifier_WeightCapAtOne(t *testing.T) {
	c := newClassifier()

	// A pile of patterns for one category cannot exceed certainty.
	patterns := []*knowledge.ClassificationPattern{}
	for _, p := range []string{"capital call", "call notice", "capital"} {
		patterns = append(patterns, &knowledge.ClassificationPattern{
			ID: "w-" + p, AssetType: knowledge.AssetTypeCredit,
			Category: "loan_documents", Pattern: p, Weight: 0.9,
		})
	}

	result, err := c.Classify(context.Background(), Input{
		AssetType: knowledge.AssetTypeCredit,
		Filename:  "capital_call_notice.tif",
		Subject:   "capital call notice",
	}, nil, patterns)
	require.NoError(t, err)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestClassifier_LengthHeuristicWeight(t *testing.T) {
	c := newClassifier()

	// No explicit weight: a longer pattern is more specific.
	patterns := []*knowledge.ClassificationPattern{
		{ID: "short", AssetType: knowledge.AssetTypeCredit, Category: "correspondence",
			Pattern: "note"},
		{ID: "long", AssetType: knowledge.AssetTypeCredit, Category: "legal_documents",
			Pattern: "amended credit agreement"},
	}

	result, err := c.Classify(context.Background(), Input{
		AssetType: knowledge.AssetTypeCredit,
		Filename:  "note_amended_credit_agreement.tif",
		Subject:   "note amended credit agreement",
	}, nil, patterns)
	require.NoError(t, err)
	assert.Equal(t, "legal_documents", result.Category)
}

func TestClassifier_DeterministicTieBreak(t *testing.T) {
	c := newClassifier()

	patterns := []*knowledge.ClassificationPattern{
		{ID: "a", AssetType: knowledge.AssetTypeCredit, Category: "legal_documents",
			Pattern: "agreement", Weight: 0.5},
		{ID: "b", AssetType: knowledge.AssetTypeCredit, Category: "correspondence",
			Pattern: "agreement", Weight: 0.5},
	}

	in := Input{AssetType: knowledge.AssetTypeCredit, Filename: "agreement.tif"}
	first, err := c.Classify(context.Background(), in, nil, patterns)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.Classify(context.Background(), in, nil, patterns)
		require.NoError(t, err)
		assert.Equal(t, first.Category, again.Category)
	}
}
