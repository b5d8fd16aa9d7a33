package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeSeedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	seeds := map[string]string{
		"assets.yaml": `
- asset_id: asset-i3
  deal_name: Project I3
  asset_name: I3 Holdings
  asset_type: credit
  identifiers: ["i3", "project i3"]
- asset_id: asset-rivertown
  deal_name: Rivertown Plaza
  asset_name: Rivertown Plaza LP
  asset_type: real_estate
  identifiers: ["rivertown"]
`,
		"file_type_rules.yaml": `
- extension: .pdf
  is_allowed: true
  security_level: safe
  confidence: high
- extension: .exe
  is_allowed: false
  security_level: dangerous
  confidence: high
`,
		"patterns.yaml": `
- asset_type: credit
  category: loan_documents
  pattern: capital call
  weight: 0.9
`,
		"senders.yaml": `
- address: reports@lenderco.com
  asset_ids: ["asset-i3"]
  trust_score: 0.9
  organization: LenderCo
`,
	}
	for name, content := range seeds {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

// directIngest inserts without the conflict gate; bootstrap tests only
// exercise the loader itself.
func directIngest(db *DB) IngestFunc {
	return func(ctx context.Context, f Fact) (string, error) {
		if err := f.Validate(); err != nil {
			return "", err
		}
		p, err := db.PartitionFor(f.Collection())
		if err != nil {
			return "", err
		}
		if err := p.Insert(ctx, f); err != nil {
			return "", err
		}
		return f.FactID(), nil
	}
}

func TestBootstrapper_Load(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := writeSeedDir(t)

	b := NewBootstrapper(db, zap.NewNop())
	result, err := b.Load(ctx, dir, directIngest(db))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Loaded[CollectionAssets])
	assert.Equal(t, 2, result.Loaded[CollectionFileRules])
	assert.Equal(t, 1, result.Loaded[CollectionPatterns])
	assert.Equal(t, 1, result.Loaded[CollectionSenders])
	assert.Empty(t, result.AlreadyLoaded)

	// Seed facts carry their schema values.
	f, err := db.FileRules().GetByKey(ctx, ".exe")
	require.NoError(t, err)
	rule := f.(*FileTypeRule)
	assert.False(t, rule.Allowed)
	assert.Equal(t, SecurityDangerous, rule.Security)
	assert.Equal(t, TierHigh, rule.Confidence)
}

func TestBootstrapper_Load_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := writeSeedDir(t)

	b := NewBootstrapper(db, zap.NewNop())
	_, err := b.Load(ctx, dir, directIngest(db))
	require.NoError(t, err)

	before, err := db.Stats(ctx)
	require.NoError(t, err)

	// Second run reports all collections as already loaded and writes
	// nothing.
	result, err := b.Load(ctx, dir, directIngest(db))
	require.NoError(t, err)
	assert.Empty(t, result.Loaded)
	assert.ElementsMatch(t, []string{
		CollectionAssets, CollectionFileRules, CollectionPatterns, CollectionSenders,
	}, result.AlreadyLoaded)

	after, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBootstrapper_Load_RejectsOverlappingIdentifiers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets.yaml"), []byte(`
- asset_id: asset-a
  deal_name: Deal A
  asset_type: credit
  identifiers: ["shared"]
- asset_id: asset-b
  deal_name: Deal B
  asset_type: credit
  identifiers: ["shared"]
`), 0o600))

	b := NewBootstrapper(db, zap.NewNop())
	_, err := b.Load(ctx, dir, directIngest(db))
	require.ErrorIs(t, err, ErrValidation)

	// Nothing was marked loaded, so a corrected seed can be retried.
	loaded, err := db.IsLoaded(ctx, CollectionAssets)
	require.NoError(t, err)
	assert.False(t, loaded)
}

func TestBootstrapper_Load_MissingFilesSkipped(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	b := NewBootstrapper(db, zap.NewNop())
	result, err := b.Load(ctx, t.TempDir(), directIngest(db))
	require.NoError(t, err)
	assert.Empty(t, result.Loaded)
	assert.Empty(t, result.AlreadyLoaded)
}
