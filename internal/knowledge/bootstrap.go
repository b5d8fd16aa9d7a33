package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// IngestFunc routes a candidate fact through the conflict gate. The
// bootstrapper takes it as a dependency so seeding obeys the same
// deduplication and conflict handling as every other write.
type IngestFunc func(ctx context.Context, f Fact) (string, error)

// Bootstrapper seeds the knowledge partitions from YAML files. Seeding is
// idempotent: a persisted per-collection marker plus a coarse in-process
// lock prevent duplicate loading across concurrent startups, and the
// marker survives restarts.
type Bootstrapper struct {
	db     *DB
	logger *zap.Logger

	mu sync.Mutex // serializes seeding within this process
}

// NewBootstrapper creates a bootstrapper over the knowledge database.
func NewBootstrapper(db *DB, logger *zap.Logger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{db: db, logger: logger}
}

// BootstrapResult reports what one bootstrap run did per collection.
type BootstrapResult struct {
	Loaded        map[string]int `json:"loaded"`         // collection -> items ingested
	AlreadyLoaded []string       `json:"already_loaded"` // collections skipped
	Duration      time.Duration  `json:"duration"`
}

// assetSeed mirrors the bootstrap record schema for assets.
type assetSeed struct {
	AssetID         string            `yaml:"asset_id"`
	DealName        string            `yaml:"deal_name"`
	AssetName       string            `yaml:"asset_name"`
	AssetType       string            `yaml:"asset_type"`
	Identifiers     []string          `yaml:"identifiers"`
	BusinessContext map[string]string `yaml:"business_context"`
}

// fileRuleSeed mirrors the bootstrap record schema for file-type rules.
type fileRuleSeed struct {
	Extension          string   `yaml:"extension"`
	IsAllowed          bool     `yaml:"is_allowed"`
	SecurityLevel      string   `yaml:"security_level"`
	AssetTypes         []string `yaml:"asset_types"`
	DocumentCategories []string `yaml:"document_categories"`
	SuccessCount       int      `yaml:"success_count"`
	FailureCount       int      `yaml:"failure_count"`
	Confidence         string   `yaml:"confidence"`
}

type patternSeed struct {
	AssetType string  `yaml:"asset_type"`
	Category  string  `yaml:"category"`
	Pattern   string  `yaml:"pattern"`
	Weight    float64 `yaml:"weight"`
}

type senderSeed struct {
	Address      string   `yaml:"address"`
	AssetIDs     []string `yaml:"asset_ids"`
	TrustScore   float64  `yaml:"trust_score"`
	Organization string   `yaml:"organization"`
}

// Load seeds all collections from YAML files under dir. Missing seed
// files are skipped. A collection already marked loaded is reported in
// AlreadyLoaded and its item count is left unchanged.
func (b *Bootstrapper) Load(ctx context.Context, dir string, ingest IngestFunc) (*BootstrapResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	result := &BootstrapResult{Loaded: make(map[string]int)}

	steps := []struct {
		collection string
		file       string
		load       func(ctx context.Context, path string, ingest IngestFunc) (int, error)
	}{
		{CollectionAssets, "assets.yaml", b.loadAssets},
		{CollectionFileRules, "file_type_rules.yaml", b.loadFileRules},
		{CollectionPatterns, "patterns.yaml", b.loadPatterns},
		{CollectionSenders, "senders.yaml", b.loadSenders},
	}

	for _, step := range steps {
		path := filepath.Join(dir, step.file)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}

		loaded, err := b.db.IsLoaded(ctx, step.collection)
		if err != nil {
			return nil, err
		}
		if loaded {
			result.AlreadyLoaded = append(result.AlreadyLoaded, step.collection)
			b.logger.Info("bootstrap skipped, already loaded",
				zap.String("collection", step.collection))
			continue
		}

		n, err := step.load(ctx, path, ingest)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", step.collection, err)
		}

		if err := b.db.MarkLoaded(ctx, step.collection, n); err != nil {
			if errors.Is(err, ErrAlreadyLoaded) {
				// Another startup committed the marker first.
				result.AlreadyLoaded = append(result.AlreadyLoaded, step.collection)
				continue
			}
			return nil, err
		}
		result.Loaded[step.collection] = n
		b.logger.Info("bootstrap seeded collection",
			zap.String("collection", step.collection), zap.Int("items", n))
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (b *Bootstrapper) loadAssets(ctx context.Context, path string, ingest IngestFunc) (int, error) {
	var seeds []assetSeed
	if err := readSeed(path, &seeds); err != nil {
		return 0, err
	}

	now := time.Now()
	profiles := make([]*AssetProfile, 0, len(seeds))
	for _, s := range seeds {
		profiles = append(profiles, &AssetProfile{
			ID:              s.AssetID,
			DealName:        s.DealName,
			AssetName:       s.AssetName,
			Type:            AssetType(s.AssetType),
			Identifiers:     s.Identifiers,
			BusinessContext: s.BusinessContext,
			Confidence:      TierHigh, // bootstrap facts are authoritative
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	// Disjointness is a store invariant, checked before any write.
	if err := CheckIdentifierDisjointness(profiles); err != nil {
		return 0, err
	}

	for _, p := range profiles {
		if _, err := ingest(ctx, p); err != nil {
			return 0, fmt.Errorf("ingest asset %s: %w", p.ID, err)
		}
	}
	return len(profiles), nil
}

func (b *Bootstrapper) loadFileRules(ctx context.Context, path string, ingest IngestFunc) (int, error) {
	var seeds []fileRuleSeed
	if err := readSeed(path, &seeds); err != nil {
		return 0, err
	}

	now := time.Now()
	for _, s := range seeds {
		rule := &FileTypeRule{
			ID:           uuid.New().String(),
			Extension:    s.Extension,
			Allowed:      s.IsAllowed,
			Security:     SecurityLevel(s.SecurityLevel),
			AssetTypes:   s.AssetTypes,
			Categories:   s.DocumentCategories,
			SuccessCount: s.SuccessCount,
			FailureCount: s.FailureCount,
			Confidence:   ParseTier(s.Confidence),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err := ingest(ctx, rule); err != nil {
			return 0, fmt.Errorf("ingest rule %s: %w", rule.Extension, err)
		}
	}
	return len(seeds), nil
}

func (b *Bootstrapper) loadPatterns(ctx context.Context, path string, ingest IngestFunc) (int, error) {
	var seeds []patternSeed
	if err := readSeed(path, &seeds); err != nil {
		return 0, err
	}

	now := time.Now()
	for _, s := range seeds {
		p := &ClassificationPattern{
			ID:         uuid.New().String(),
			AssetType:  AssetType(s.AssetType),
			Category:   s.Category,
			Pattern:    s.Pattern,
			Weight:     s.Weight,
			Confidence: TierMedium,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if _, err := ingest(ctx, p); err != nil {
			return 0, fmt.Errorf("ingest pattern %q: %w", p.Pattern, err)
		}
	}
	return len(seeds), nil
}

func (b *Bootstrapper) loadSenders(ctx context.Context, path string, ingest IngestFunc) (int, error) {
	var seeds []senderSeed
	if err := readSeed(path, &seeds); err != nil {
		return 0, err
	}

	now := time.Now()
	for _, s := range seeds {
		m := &SenderMapping{
			ID:           uuid.New().String(),
			Address:      s.Address,
			AssetIDs:     s.AssetIDs,
			TrustScore:   s.TrustScore,
			Organization: s.Organization,
			Confidence:   TierHigh,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err := ingest(ctx, m); err != nil {
			return 0, fmt.Errorf("ingest sender %s: %w", m.Address, err)
		}
	}
	return len(seeds), nil
}

func readSeed(path string, out interface{}) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	if err := yaml.Unmarshal(content, out); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return nil
}
