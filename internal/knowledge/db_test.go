package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPartition_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	a := validAsset()
	require.NoError(t, db.Assets().Insert(ctx, a))

	got, err := db.Assets().GetByKey(ctx, a.IdentityKey())
	require.NoError(t, err)
	stored, ok := got.(*AssetProfile)
	require.True(t, ok)
	assert.Equal(t, a.ID, stored.ID)
	assert.Equal(t, a.DealName, stored.DealName)
	assert.ElementsMatch(t, a.Identifiers, stored.Identifiers)

	byFP, err := db.Assets().GetByFingerprint(ctx, a.Fingerprint())
	require.NoError(t, err)
	assert.Equal(t, a.ID, byFP.FactID())

	_, err = db.Assets().GetByKey(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPartition_Insert_DuplicateIdentity(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.Assets().Insert(ctx, validAsset()))

	dup := validAsset()
	dup.DealName = "Different Deal"
	err := db.Assets().Insert(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
}

func TestPartition_Update(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	a := validAsset()
	require.NoError(t, db.Assets().Insert(ctx, a))

	a.DealName = "Project I3 Refi"
	require.NoError(t, db.Assets().Update(ctx, a))

	got, err := db.Assets().GetByKey(ctx, a.IdentityKey())
	require.NoError(t, err)
	assert.Equal(t, "Project I3 Refi", got.(*AssetProfile).DealName)

	ghost := validAsset()
	ghost.ID = "asset-ghost"
	assert.ErrorIs(t, db.Assets().Update(ctx, ghost), ErrNotFound)
}

func TestPartition_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.Assets().Insert(ctx, validAsset()))

	// A rule sharing nothing with the asset lives in its own collection.
	rule := &FileTypeRule{ID: "r1", Extension: ".pdf", Allowed: true, Security: SecuritySafe}
	require.NoError(t, db.FileRules().Insert(ctx, rule))

	n, err := db.Assets().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	facts, err := db.FileRules().List(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	_, ok := facts[0].(*FileTypeRule)
	assert.True(t, ok)
}

func TestDB_Stats(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.Assets().Insert(ctx, validAsset()))
	rec := NewEpisodicRecord("a.pdf", "excerpt", "loan_documents",
		AssetTypeCredit, "asset-i3", 0.8, SourceAuto)
	require.NoError(t, db.Episodic().Insert(ctx, rec))

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[CollectionAssets])
	assert.Equal(t, 1, stats[CollectionEpisodic])
	assert.Equal(t, 0, stats[CollectionSenders])
	assert.Len(t, stats, len(Collections()))
}

func TestDB_ConflictLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	record := &ConflictRecord{
		Collection:           CollectionFileRules,
		Type:                 ConflictAllowDenyMismatch,
		Severity:             SeverityHigh,
		ExistingID:           "r1",
		CandidateFingerprint: "fp",
		Resolution:           ResolutionPending,
		Rationale:            "is_allowed flipped",
	}
	require.NoError(t, db.SaveConflict(ctx, record))
	require.NotEmpty(t, record.ID)

	pending, err := db.PendingConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, record.ID, pending[0].ID)

	require.NoError(t, db.ResolveConflict(ctx, record.ID, ResolutionRejected))

	pending, err = db.PendingConflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// The record is retained after resolution.
	got, err := db.GetConflict(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, ResolutionRejected, got.Resolution)

	// Resolving a non-pending conflict fails.
	assert.ErrorIs(t, db.ResolveConflict(ctx, record.ID, ResolutionUpdated), ErrNotFound)
}

func TestDB_AuditTrail(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, action := range []string{"inserted", "updated"} {
		require.NoError(t, db.AppendAudit(ctx, &AuditEntry{
			Collection: CollectionAssets,
			FactID:     "asset-i3",
			Action:     action,
			Rationale:  "test entry",
		}))
	}

	trail, err := db.AuditTrail(ctx, "asset-i3")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "inserted", trail[0].Action)
	assert.Equal(t, "updated", trail[1].Action)
}

func TestDB_BootstrapMarkers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	loaded, err := db.IsLoaded(ctx, CollectionAssets)
	require.NoError(t, err)
	assert.False(t, loaded)

	require.NoError(t, db.MarkLoaded(ctx, CollectionAssets, 3))

	loaded, err = db.IsLoaded(ctx, CollectionAssets)
	require.NoError(t, err)
	assert.True(t, loaded)

	assert.ErrorIs(t, db.MarkLoaded(ctx, CollectionAssets, 3), ErrAlreadyLoaded)
}

func TestDB_EvictEpisodic_SizeCapOrdering(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	correction := NewEpisodicRecord("c.pdf", "corrected", "loan_documents",
		AssetTypeCredit, "asset-i3", 1.0, SourceHumanCorrection)
	require.NoError(t, db.Episodic().Insert(ctx, correction))

	for i := 0; i < 3; i++ {
		rec := NewEpisodicRecord("a.pdf", "auto", "loan_documents",
			AssetTypeCredit, "asset-i3", 0.8, SourceAuto)
		rec.Excerpt = rec.Excerpt + string(rune('a'+i)) // distinct fingerprints
		require.NoError(t, db.Episodic().Insert(ctx, rec))
	}

	// Cap of 2: the two evicted records must both be auto, even though the
	// correction is the oldest row.
	n, err := db.EvictEpisodic(ctx, 2, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	facts, err := db.Episodic().List(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 2)

	var corrections int
	for _, f := range facts {
		if f.(*EpisodicRecord).Source == SourceHumanCorrection {
			corrections++
		}
	}
	assert.Equal(t, 1, corrections, "the correction record survives the size cap")
}

func TestDB_EvictEpisodic_AgeCapSkipsCorrections(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	old := NewEpisodicRecord("old.pdf", "auto", "loan_documents",
		AssetTypeCredit, "asset-i3", 0.8, SourceAuto)
	require.NoError(t, db.Episodic().Insert(ctx, old))
	oldCorr := NewEpisodicRecord("oldc.pdf", "corrected", "loan_documents",
		AssetTypeCredit, "asset-i3", 1.0, SourceHumanCorrection)
	require.NoError(t, db.Episodic().Insert(ctx, oldCorr))

	// Backdate both rows beyond the age cap.
	_, err := db.SQL().Exec(`UPDATE facts SET created_at = ? WHERE collection = ?`,
		time.Now().UTC().Add(-48*time.Hour), CollectionEpisodic)
	require.NoError(t, err)

	n, err := db.EvictEpisodic(ctx, 100, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	facts, err := db.Episodic().List(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, SourceHumanCorrection, facts[0].(*EpisodicRecord).Source)
}
