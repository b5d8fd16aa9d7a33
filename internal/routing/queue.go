package routing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Queue errors.
var (
	ErrItemNotFound = errors.New("review item not found")
)

// ItemState is the lifecycle state of a review item.
type ItemState string

const (
	StatePending  ItemState = "pending"
	StateResolved ItemState = "resolved"
)

// ReviewItem is one attachment awaiting a human classification decision.
// Items never disappear silently: resolution marks them resolved and
// keeps the row.
type ReviewItem struct {
	ID         string       `json:"id"`
	Reason     ReviewReason `json:"reason"`
	AssetID    string       `json:"asset_id,omitempty"` // the asset's bucket, empty for the general queue
	Filename   string       `json:"filename"`
	Subject    string       `json:"subject,omitempty"`
	Excerpt    string       `json:"excerpt,omitempty"`
	Category   string       `json:"category,omitempty"` // classifier's best guess
	AssetType  string       `json:"asset_type,omitempty"`
	Confidence float64      `json:"confidence"`
	State      ItemState    `json:"state"`
	CreatedAt  time.Time    `json:"created_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

// Resolution is a human's verdict on a review item.
type Resolution struct {
	// Discard drops the attachment instead of storing it.
	Discard bool

	// Category and AssetID carry the corrected values when storing.
	Category string
	AssetID  string
}

// Queue is the persisted human review queue, shared by the per-asset
// review buckets and the general queue (distinguished by AssetID and
// Reason).
type Queue struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewQueue creates a review queue over the knowledge database handle.
// The review_items table is created by knowledge.Open.
func NewQueue(db *sql.DB, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{db: db, logger: logger}
}

// Enqueue adds a pending review item and returns its id.
func (q *Queue) Enqueue(ctx context.Context, item *ReviewItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.State = StatePending
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO review_items (id, reason, asset_id, filename, subject, excerpt, category,
		                           asset_type, confidence, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.Reason), item.AssetID, item.Filename, item.Subject, item.Excerpt,
		item.Category, item.AssetType, item.Confidence, string(item.State), item.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("enqueue review item: %w", err)
	}
	q.logger.Info("attachment queued for review",
		zap.String("id", item.ID),
		zap.String("reason", string(item.Reason)),
		zap.String("filename", item.Filename))
	return item.ID, nil
}

// Pending lists pending items, oldest first. An empty assetID lists the
// whole queue including the general partition.
func (q *Queue) Pending(ctx context.Context, assetID string) ([]*ReviewItem, error) {
	query := `SELECT id, reason, asset_id, filename, subject, excerpt, category, asset_type,
	                 confidence, state, created_at, resolved_at
	          FROM review_items WHERE state = ?`
	args := []interface{}{string(StatePending)}
	if assetID != "" {
		query += ` AND asset_id = ?`
		args = append(args, assetID)
	}
	query += ` ORDER BY created_at`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list review items: %w", err)
	}
	defer rows.Close()

	var out []*ReviewItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Get retrieves one review item.
func (q *Queue) Get(ctx context.Context, id string) (*ReviewItem, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, reason, asset_id, filename, subject, excerpt, category, asset_type,
		        confidence, state, created_at, resolved_at
		 FROM review_items WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get review item: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return scanItem(rows)
}

// Resolve transitions a pending item to resolved, applying the human's
// correction to the stored copy, and returns the updated item. Callers
// emit the human_correction episodic record from it.
func (q *Queue) Resolve(ctx context.Context, id string, res Resolution) (*ReviewItem, error) {
	item, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.State != StatePending {
		return nil, fmt.Errorf("%w: %s is already resolved", ErrItemNotFound, id)
	}

	if !res.Discard {
		if res.Category != "" {
			item.Category = res.Category
		}
		if res.AssetID != "" {
			item.AssetID = res.AssetID
		}
	}
	now := time.Now().UTC()
	item.State = StateResolved
	item.ResolvedAt = &now

	result, err := q.db.ExecContext(ctx,
		`UPDATE review_items SET state = ?, category = ?, asset_id = ?, resolved_at = ?
		 WHERE id = ? AND state = ?`,
		string(StateResolved), item.Category, item.AssetID, now, id, string(StatePending))
	if err != nil {
		return nil, fmt.Errorf("resolve review item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("resolve review item: %w", err)
	}
	if n == 0 {
		// Lost the race to another resolver.
		return nil, fmt.Errorf("%w: %s is already resolved", ErrItemNotFound, id)
	}

	q.logger.Info("review item resolved",
		zap.String("id", id),
		zap.Bool("discarded", res.Discard),
		zap.String("category", item.Category))
	return item, nil
}

func scanItem(rows *sql.Rows) (*ReviewItem, error) {
	var item ReviewItem
	var resolvedAt sql.NullTime
	if err := rows.Scan(&item.ID, &item.Reason, &item.AssetID, &item.Filename, &item.Subject,
		&item.Excerpt, &item.Category, &item.AssetType, &item.Confidence, &item.State,
		&item.CreatedAt, &resolvedAt); err != nil {
		return nil, fmt.Errorf("scan review item: %w", err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		item.ResolvedAt = &t
	}
	return &item, nil
}
