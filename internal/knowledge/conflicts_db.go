package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQL exposes the underlying handle for packages that persist their own
// tables in the shared database (the review queue). The schema for those
// tables is created by Open.
func (d *DB) SQL() *sql.DB { return d.db }

// SaveConflict persists a new conflict record.
func (d *DB) SaveConflict(ctx context.Context, c *ConflictRecord) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO conflicts (id, collection, type, severity, existing_id, candidate_fingerprint,
		                        existing_summary, candidate_summary, resolution, rationale, created_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Collection, string(c.Type), string(c.Severity), c.ExistingID, c.CandidateFingerprint,
		c.ExistingSummary, c.CandidateSummary, string(c.Resolution), c.Rationale, c.CreatedAt, c.ResolvedAt)
	if err != nil {
		return wrapStorage(err, "save conflict")
	}
	return nil
}

// PendingConflicts returns conflicts awaiting human resolution, oldest first.
func (d *DB) PendingConflicts(ctx context.Context) ([]*ConflictRecord, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, collection, type, severity, existing_id, candidate_fingerprint,
		        existing_summary, candidate_summary, resolution, rationale, created_at, resolved_at
		 FROM conflicts WHERE resolution = ? ORDER BY created_at`, string(ResolutionPending))
	if err != nil {
		return nil, wrapStorage(err, "list pending conflicts")
	}
	defer rows.Close()
	return scanConflicts(rows)
}

// GetConflict retrieves one conflict record by id.
func (d *DB) GetConflict(ctx context.Context, id string) (*ConflictRecord, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, collection, type, severity, existing_id, candidate_fingerprint,
		        existing_summary, candidate_summary, resolution, rationale, created_at, resolved_at
		 FROM conflicts WHERE id = ?`, id)
	if err != nil {
		return nil, wrapStorage(err, "get conflict")
	}
	defer rows.Close()
	records, err := scanConflicts(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: conflict %s", ErrNotFound, id)
	}
	return records[0], nil
}

// ResolveConflict transitions a pending conflict to its terminal state.
// The record itself is retained for audit.
func (d *DB) ResolveConflict(ctx context.Context, id string, resolution ConflictResolution) error {
	if resolution == ResolutionPending {
		return fmt.Errorf("%w: cannot resolve a conflict back to pending", ErrValidation)
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE conflicts SET resolution = ?, resolved_at = ? WHERE id = ? AND resolution = ?`,
		string(resolution), time.Now().UTC(), id, string(ResolutionPending))
	if err != nil {
		return wrapStorage(err, "resolve conflict")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStorage(err, "resolve conflict")
	}
	if n == 0 {
		return fmt.Errorf("%w: pending conflict %s", ErrNotFound, id)
	}
	return nil
}

func scanConflicts(rows *sql.Rows) ([]*ConflictRecord, error) {
	var out []*ConflictRecord
	for rows.Next() {
		var c ConflictRecord
		var resolvedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.Collection, &c.Type, &c.Severity, &c.ExistingID,
			&c.CandidateFingerprint, &c.ExistingSummary, &c.CandidateSummary,
			&c.Resolution, &c.Rationale, &c.CreatedAt, &resolvedAt); err != nil {
			return nil, wrapStorage(err, "scan conflict")
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			c.ResolvedAt = &t
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// AppendAudit records an accepted gate outcome with its rationale.
func (d *DB) AppendAudit(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, collection, fact_id, action, rationale, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Collection, e.FactID, e.Action, e.Rationale, e.CreatedAt)
	if err != nil {
		return wrapStorage(err, "append audit entry")
	}
	return nil
}

// AuditTrail returns audit entries for one fact, oldest first.
func (d *DB) AuditTrail(ctx context.Context, factID string) ([]*AuditEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, collection, fact_id, action, rationale, created_at
		 FROM audit_log WHERE fact_id = ? ORDER BY created_at`, factID)
	if err != nil {
		return nil, wrapStorage(err, "list audit entries")
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Collection, &e.FactID, &e.Action, &e.Rationale, &e.CreatedAt); err != nil {
			return nil, wrapStorage(err, "scan audit entry")
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// MarkLoaded records that a collection's bootstrap seed has been applied.
// Returns ErrAlreadyLoaded if another startup won the race.
func (d *DB) MarkLoaded(ctx context.Context, collection string, itemCount int) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO bootstrap_markers (collection, loaded_at, item_count) VALUES (?, ?, ?)`,
		collection, time.Now().UTC(), itemCount)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyLoaded
		}
		return wrapStorage(err, "mark collection loaded")
	}
	return nil
}

// IsLoaded reports whether a collection's bootstrap seed was applied.
func (d *DB) IsLoaded(ctx context.Context, collection string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bootstrap_markers WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return false, wrapStorage(err, "check bootstrap marker")
	}
	return n > 0, nil
}

// ErrAlreadyLoaded signals that bootstrap seeding already ran for a
// collection; a second run must leave item counts unchanged.
var ErrAlreadyLoaded = errors.New("collection already loaded")

// EvictEpisodic enforces the episodic retention policy: drop records older
// than maxAge, then trim to maxRecords. Auto records go first in both
// passes; human corrections are only evicted once no auto records remain.
func (d *DB) EvictEpisodic(ctx context.Context, maxRecords int, maxAge time.Duration) (int, error) {
	evicted := 0

	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM facts WHERE collection = ? AND source = ? AND created_at < ?`,
		CollectionEpisodic, string(SourceAuto), cutoff)
	if err != nil {
		return 0, wrapStorage(err, "evict aged episodic records")
	}
	if n, err := res.RowsAffected(); err == nil {
		evicted += int(n)
	}

	count, err := d.Episodic().Count(ctx)
	if err != nil {
		return evicted, err
	}
	if count <= maxRecords {
		return evicted, nil
	}

	// Size cap: evict oldest-first with corrections sorted behind every
	// auto record regardless of age.
	res, err = d.db.ExecContext(ctx,
		`DELETE FROM facts WHERE collection = ? AND id IN (
		     SELECT id FROM facts WHERE collection = ?
		     ORDER BY CASE source WHEN ? THEN 0 ELSE 1 END, created_at
		     LIMIT ?)`,
		CollectionEpisodic, CollectionEpisodic, string(SourceAuto), count-maxRecords)
	if err != nil {
		return evicted, wrapStorage(err, "evict excess episodic records")
	}
	if n, err := res.RowsAffected(); err == nil {
		evicted += int(n)
	}
	return evicted, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}
