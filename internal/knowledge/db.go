package knowledge

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

// DB is the shared persistence layer behind the four knowledge partitions.
// Each partition is a typed view over the facts table; all of them share
// conflict records, the audit log, the review queue, and bootstrap markers.
type DB struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the knowledge database at path.
// ":memory:" is valid for tests.
func Open(path string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &DB{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Partition is one typed collection of facts. The conflict gate is the
// only writer; readers use GetByKey, GetByID, and List.
type Partition struct {
	db     *DB
	name   string
	decode func([]byte) (Fact, error)
}

func decodeInto[T any](payload []byte) (Fact, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("decode fact payload: %w", err)
	}
	f, ok := any(&v).(Fact)
	if !ok {
		return nil, errors.New("decoded value does not implement Fact")
	}
	return f, nil
}

// Assets returns the asset profile collection (semantic partition).
func (d *DB) Assets() *Partition {
	return &Partition{db: d, name: CollectionAssets, decode: decodeInto[AssetProfile]}
}

// FileRules returns the file-type rule collection (semantic partition).
func (d *DB) FileRules() *Partition {
	return &Partition{db: d, name: CollectionFileRules, decode: decodeInto[FileTypeRule]}
}

// Feedback returns the human feedback collection (semantic partition).
func (d *DB) Feedback() *Partition {
	return &Partition{db: d, name: CollectionFeedback, decode: decodeInto[FeedbackRecord]}
}

// Patterns returns the classification pattern collection (procedural partition).
func (d *DB) Patterns() *Partition {
	return &Partition{db: d, name: CollectionPatterns, decode: decodeInto[ClassificationPattern]}
}

// Episodic returns the experience log collection (episodic partition).
func (d *DB) Episodic() *Partition {
	return &Partition{db: d, name: CollectionEpisodic, decode: decodeInto[EpisodicRecord]}
}

// Senders returns the sender mapping collection (contact partition).
func (d *DB) Senders() *Partition {
	return &Partition{db: d, name: CollectionSenders, decode: decodeInto[SenderMapping]}
}

// PartitionFor resolves a collection name to its partition.
func (d *DB) PartitionFor(collection string) (*Partition, error) {
	switch collection {
	case CollectionAssets:
		return d.Assets(), nil
	case CollectionFileRules:
		return d.FileRules(), nil
	case CollectionFeedback:
		return d.Feedback(), nil
	case CollectionPatterns:
		return d.Patterns(), nil
	case CollectionEpisodic:
		return d.Episodic(), nil
	case CollectionSenders:
		return d.Senders(), nil
	}
	return nil, fmt.Errorf("unknown collection %q", collection)
}

// Name returns the collection name.
func (p *Partition) Name() string { return p.name }

func wrapStorage(err error, op string) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// Insert stores a new fact. The UNIQUE(collection, identity_key)
// constraint backstops the gate's per-key serialization.
func (p *Partition) Insert(ctx context.Context, f Fact) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode fact: %w", err)
	}
	now := time.Now().UTC()
	source := ""
	if er, ok := f.(*EpisodicRecord); ok {
		source = string(er.Source)
	}
	_, err = p.db.db.ExecContext(ctx,
		`INSERT INTO facts (id, collection, identity_key, fingerprint, tier, source, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FactID(), p.name, f.IdentityKey(), f.Fingerprint(), int(f.Tier()), source, string(payload), now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateIdentity, p.name, f.IdentityKey())
		}
		return wrapStorage(err, "insert fact")
	}
	return nil
}

// Update overwrites the fact stored under the same identity key.
func (p *Partition) Update(ctx context.Context, f Fact) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode fact: %w", err)
	}
	res, err := p.db.db.ExecContext(ctx,
		`UPDATE facts SET id = ?, fingerprint = ?, tier = ?, payload = ?, updated_at = ?
		 WHERE collection = ? AND identity_key = ?`,
		f.FactID(), f.Fingerprint(), int(f.Tier()), string(payload), time.Now().UTC(), p.name, f.IdentityKey())
	if err != nil {
		return wrapStorage(err, "update fact")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStorage(err, "update fact")
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, p.name, f.IdentityKey())
	}
	return nil
}

// GetByKey retrieves the fact stored under identity key.
func (p *Partition) GetByKey(ctx context.Context, key string) (Fact, error) {
	return p.get(ctx, "identity_key", key)
}

// GetByID retrieves a fact by its id.
func (p *Partition) GetByID(ctx context.Context, id string) (Fact, error) {
	return p.get(ctx, "id", id)
}

// GetByFingerprint retrieves the fact with the given content fingerprint.
func (p *Partition) GetByFingerprint(ctx context.Context, fp string) (Fact, error) {
	return p.get(ctx, "fingerprint", fp)
}

func (p *Partition) get(ctx context.Context, column, value string) (Fact, error) {
	var payload string
	err := p.db.db.QueryRowContext(ctx,
		`SELECT payload FROM facts WHERE collection = ? AND `+column+` = ? LIMIT 1`,
		p.name, value).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s=%s", ErrNotFound, p.name, column, value)
	}
	if err != nil {
		return nil, wrapStorage(err, "get fact")
	}
	return p.decode([]byte(payload))
}

// List returns every fact in the collection, oldest first.
func (p *Partition) List(ctx context.Context) ([]Fact, error) {
	rows, err := p.db.db.QueryContext(ctx,
		`SELECT payload FROM facts WHERE collection = ? ORDER BY created_at`, p.name)
	if err != nil {
		return nil, wrapStorage(err, "list facts")
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, wrapStorage(err, "scan fact")
		}
		f, err := p.decode([]byte(payload))
		if err != nil {
			p.db.logger.Warn("skipping undecodable fact",
				zap.String("collection", p.name), zap.Error(err))
			continue
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Count returns the number of facts in the collection.
func (p *Partition) Count(ctx context.Context) (int, error) {
	var n int
	err := p.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM facts WHERE collection = ?`, p.name).Scan(&n)
	if err != nil {
		return 0, wrapStorage(err, "count facts")
	}
	return n, nil
}

// Delete removes a fact by id. Used only by episodic eviction; the
// semantic, procedural, and contact partitions never delete.
func (p *Partition) Delete(ctx context.Context, id string) error {
	_, err := p.db.db.ExecContext(ctx,
		`DELETE FROM facts WHERE collection = ? AND id = ?`, p.name, id)
	if err != nil {
		return wrapStorage(err, "delete fact")
	}
	return nil
}

// Stats returns per-collection fact counts.
func (d *DB) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int, len(Collections()))
	for _, c := range Collections() {
		p, err := d.PartitionFor(c)
		if err != nil {
			return nil, err
		}
		n, err := p.Count(ctx)
		if err != nil {
			return nil, err
		}
		stats[c] = n
	}
	return stats, nil
}
