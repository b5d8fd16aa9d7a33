// Package config provides configuration loading for docrouter.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. All classification thresholds live here: the routing bands,
// the identifier match tiers, and the episodic recall weights. Historical
// deployments disagreed on the HIGH threshold; the table below is the one
// canonical source and every routing comparison reads from it.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete docrouter configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Storage    StorageConfig    `koanf:"storage"`
	Similarity SimilarityConfig `koanf:"similarity"`
	Identify   IdentifyConfig   `koanf:"identify"`
	Classify   ClassifyConfig   `koanf:"classify"`
	Routing    RoutingConfig    `koanf:"routing"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Episodic   EpisodicConfig   `koanf:"episodic"`
	Scan       ScanConfig       `koanf:"scan"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// StorageConfig holds the knowledge database configuration.
type StorageConfig struct {
	// Path is the SQLite database file. ":memory:" is valid for tests.
	Path string `koanf:"path"`
}

// SimilarityConfig holds the episodic similarity store configuration.
type SimilarityConfig struct {
	// Path is the directory for the embedded vector store.
	Path string `koanf:"path"`

	// Collection is the collection holding episodic records.
	Collection string `koanf:"collection"`

	// VectorSize must match the embedder's output dimension.
	VectorSize int `koanf:"vector_size"`

	// EmbedModel selects the local embedding model.
	EmbedModel string `koanf:"embed_model"`

	// LookupTimeout bounds each nearest-neighbor lookup. On timeout the
	// pipeline continues without the similarity signal.
	LookupTimeout Duration `koanf:"lookup_timeout"`

	// MinSimilarity is the floor below which retrieved records are ignored.
	MinSimilarity float64 `koanf:"min_similarity"`
}

// IdentifyConfig holds asset identification scoring parameters.
type IdentifyConfig struct {
	// Match tier scores, ordered strongest to weakest.
	ExactTokenScore float64 `koanf:"exact_token_score"` // whole-token match
	AllWordsScore   float64 `koanf:"all_words_score"`   // every word present
	SubstringScore  float64 `koanf:"substring_score"`   // raw substring
	FuzzyScore      float64 `koanf:"fuzzy_score"`       // edit-distance match

	// FuzzyThreshold is the minimum normalized edit-distance similarity
	// for the fuzzy tier to fire.
	FuzzyThreshold float64 `koanf:"fuzzy_threshold"`

	// ExtraMatchBonus is added per identifier matched beyond the first.
	ExtraMatchBonus float64 `koanf:"extra_match_bonus"`

	// ExtraMatchBonusCap caps the total multi-identifier bonus.
	ExtraMatchBonusCap float64 `koanf:"extra_match_bonus_cap"`

	// SenderSeedScore is the candidate score seeded by a trusted sender
	// mapping. It does not short-circuit text scoring.
	SenderSeedScore float64 `koanf:"sender_seed_score"`

	// SenderTrustFloor is the minimum trust score for the seed to apply.
	SenderTrustFloor float64 `koanf:"sender_trust_floor"`

	// MinQualifyingConfidence drops candidates scoring below it.
	MinQualifyingConfidence float64 `koanf:"min_qualifying_confidence"`

	// RecordWeightAuto and RecordWeightCorrection scale the similarity
	// boost contributed by past episodic records. Corrections carry
	// materially more weight than auto-derived decisions.
	RecordWeightAuto       float64 `koanf:"record_weight_auto"`
	RecordWeightCorrection float64 `koanf:"record_weight_correction"`
}

// ClassifyConfig holds document classification parameters.
type ClassifyConfig struct {
	// DefaultCategory is used when no pattern fires.
	DefaultCategory string `koanf:"default_category"`

	// DefaultConfidence is the fixed confidence of the fallback category.
	DefaultConfidence float64 `koanf:"default_confidence"`

	// PatternWeights overrides the per-pattern specificity weight.
	// Keys are pattern strings; missing patterns fall back to
	// min(len(pattern)/20, 1.0).
	PatternWeights map[string]float64 `koanf:"pattern_weights"`

	// Business-rule adjustments, all additive.
	ProfessionalKeywordBoost float64 `koanf:"professional_keyword_boost"`
	DocumentFormatBoost      float64 `koanf:"document_format_boost"`
	SubjectRelevanceBoost    float64 `koanf:"subject_relevance_boost"`
	TrustedSenderBoost       float64 `koanf:"trusted_sender_boost"`

	// MinSubjectLength gates the subject relevance boost.
	MinSubjectLength int `koanf:"min_subject_length"`
}

// RoutingConfig is the canonical threshold table for routing decisions.
// All comparisons are inclusive (>=).
type RoutingConfig struct {
	High   float64 `koanf:"high"`   // auto-process
	Medium float64 `koanf:"medium"` // process, flagged for confirmation
	Low    float64 `koanf:"low"`    // asset review bucket
}

// PipelineConfig holds worker pool sizing.
type PipelineConfig struct {
	MaxConcurrentEmails      int `koanf:"max_concurrent_emails"`
	MaxConcurrentAttachments int `koanf:"max_concurrent_attachments"`
}

// EpisodicConfig holds episodic log retention.
type EpisodicConfig struct {
	// MaxRecords caps the episodic log size. Oldest auto records are
	// evicted first; human corrections are evicted last.
	MaxRecords int `koanf:"max_records"`

	// MaxAge evicts records older than this, corrections excepted until
	// the size cap forces them out.
	MaxAge Duration `koanf:"max_age"`
}

// ScanConfig toggles the built-in attachment threat scanner.
type ScanConfig struct {
	// Disabled turns the scanner off. Scanning is on by default; a
	// deployment fronted by a mail gateway with its own antivirus may
	// not want it twice.
	Disabled bool `koanf:"disabled"`
}

// TelemetryConfig holds the tracing export settings. The full tracing
// setup lives in internal/telemetry; this section is what the config
// file and environment can set.
type TelemetryConfig struct {
	Enabled       bool    `koanf:"enabled"`
	Endpoint      string  `koanf:"endpoint"`
	Protocol      string  `koanf:"protocol"` // grpc or http/protobuf
	Insecure      bool    `koanf:"insecure"`
	TLSSkipVerify bool    `koanf:"tls_skip_verify"`
	SamplingRate  float64 `koanf:"sampling_rate"`
}

// applyDefaults fills in defaults for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "~/.config/docrouter/knowledge.db"
	}
	if cfg.Similarity.Path == "" {
		cfg.Similarity.Path = "~/.config/docrouter/vectorstore"
	}
	if cfg.Similarity.Collection == "" {
		cfg.Similarity.Collection = "episodic_records"
	}
	if cfg.Similarity.VectorSize == 0 {
		cfg.Similarity.VectorSize = 384
	}
	if cfg.Similarity.EmbedModel == "" {
		cfg.Similarity.EmbedModel = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Similarity.LookupTimeout == 0 {
		cfg.Similarity.LookupTimeout = Duration(2 * time.Second)
	}
	if cfg.Similarity.MinSimilarity == 0 {
		cfg.Similarity.MinSimilarity = 0.55
	}

	id := &cfg.Identify
	if id.ExactTokenScore == 0 {
		id.ExactTokenScore = 0.95
	}
	if id.AllWordsScore == 0 {
		id.AllWordsScore = 0.85
	}
	if id.SubstringScore == 0 {
		id.SubstringScore = 0.75
	}
	if id.FuzzyScore == 0 {
		id.FuzzyScore = 0.65
	}
	if id.FuzzyThreshold == 0 {
		id.FuzzyThreshold = 0.80
	}
	if id.ExtraMatchBonus == 0 {
		id.ExtraMatchBonus = 0.10
	}
	if id.ExtraMatchBonusCap == 0 {
		id.ExtraMatchBonusCap = 0.30
	}
	if id.SenderSeedScore == 0 {
		id.SenderSeedScore = 0.95
	}
	if id.SenderTrustFloor == 0 {
		id.SenderTrustFloor = 0.60
	}
	if id.MinQualifyingConfidence == 0 {
		id.MinQualifyingConfidence = 0.50
	}
	if id.RecordWeightAuto == 0 {
		id.RecordWeightAuto = 0.05
	}
	if id.RecordWeightCorrection == 0 {
		id.RecordWeightCorrection = 0.15
	}

	cl := &cfg.Classify
	if cl.DefaultCategory == "" {
		cl.DefaultCategory = "uncategorized"
	}
	if cl.DefaultConfidence == 0 {
		cl.DefaultConfidence = 0.30
	}
	if cl.ProfessionalKeywordBoost == 0 {
		cl.ProfessionalKeywordBoost = 0.10
	}
	if cl.DocumentFormatBoost == 0 {
		cl.DocumentFormatBoost = 0.05
	}
	if cl.SubjectRelevanceBoost == 0 {
		cl.SubjectRelevanceBoost = 0.05
	}
	if cl.TrustedSenderBoost == 0 {
		cl.TrustedSenderBoost = 0.10
	}
	if cl.MinSubjectLength == 0 {
		cl.MinSubjectLength = 10
	}

	if cfg.Routing.High == 0 {
		cfg.Routing.High = 0.85
	}
	if cfg.Routing.Medium == 0 {
		cfg.Routing.Medium = 0.65
	}
	if cfg.Routing.Low == 0 {
		cfg.Routing.Low = 0.40
	}

	if cfg.Pipeline.MaxConcurrentEmails == 0 {
		cfg.Pipeline.MaxConcurrentEmails = 4
	}
	if cfg.Pipeline.MaxConcurrentAttachments == 0 {
		cfg.Pipeline.MaxConcurrentAttachments = 4
	}

	if cfg.Episodic.MaxRecords == 0 {
		cfg.Episodic.MaxRecords = 5000
	}
	if cfg.Episodic.MaxAge == 0 {
		cfg.Episodic.MaxAge = Duration(180 * 24 * time.Hour)
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in [1, 65535], got %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	if c.Storage.Path == "" {
		return errors.New("storage path cannot be empty")
	}
	if c.Similarity.VectorSize <= 0 {
		return fmt.Errorf("similarity vector size must be positive, got %d", c.Similarity.VectorSize)
	}

	for name, v := range map[string]float64{
		"identify.exact_token_score":         c.Identify.ExactTokenScore,
		"identify.all_words_score":           c.Identify.AllWordsScore,
		"identify.substring_score":           c.Identify.SubstringScore,
		"identify.fuzzy_score":               c.Identify.FuzzyScore,
		"identify.fuzzy_threshold":           c.Identify.FuzzyThreshold,
		"identify.sender_seed_score":         c.Identify.SenderSeedScore,
		"identify.sender_trust_floor":        c.Identify.SenderTrustFloor,
		"identify.min_qualifying_confidence": c.Identify.MinQualifyingConfidence,
		"classify.default_confidence":        c.Classify.DefaultConfidence,
		"similarity.min_similarity":          c.Similarity.MinSimilarity,
		"telemetry.sampling_rate":            c.Telemetry.SamplingRate,
		"routing.high":                       c.Routing.High,
		"routing.medium":                     c.Routing.Medium,
		"routing.low":                        c.Routing.Low,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, v)
		}
	}

	// The bands must be ordered or routing becomes ambiguous.
	if !(c.Routing.High > c.Routing.Medium && c.Routing.Medium > c.Routing.Low) {
		return fmt.Errorf("routing thresholds must satisfy high > medium > low, got %v > %v > %v",
			c.Routing.High, c.Routing.Medium, c.Routing.Low)
	}

	if c.Identify.RecordWeightCorrection <= c.Identify.RecordWeightAuto {
		return errors.New("identify.record_weight_correction must exceed identify.record_weight_auto")
	}

	if c.Pipeline.MaxConcurrentEmails < 1 || c.Pipeline.MaxConcurrentAttachments < 1 {
		return errors.New("pipeline concurrency must be at least 1")
	}

	return nil
}
