// Package classify assigns a document category to an attachment once an
// asset has been identified. Category scores come from procedural
// classification patterns plus additive business-rule adjustments, and
// every result carries the rationale trace of what fired.
package classify

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrouter/internal/config"
	"github.com/fyrsmithlabs/docrouter/internal/knowledge"
)

// Input is the attachment context a classification runs against.
type Input struct {
	AssetType   knowledge.AssetType
	Filename    string
	Subject     string
	Body        string
	SenderKnown bool
}

// Result is a classification with its audit trail. Rationale is always
// populated, also in the fallback and degraded paths; human review needs
// to see what fired, not just the final number.
type Result struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Rationale  []string `json:"rationale"`
}

// Classifier scores candidate categories for an attachment.
type Classifier struct {
	cfg    config.ClassifyConfig
	logger *zap.Logger
}

// professionalKeywords mark filenames that look like finished business
// documents rather than scans or exports.
var professionalKeywords = []string{"report", "statement", "summary"}

// documentFormatExtensions are the recognized office document formats.
var documentFormatExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
}

// businessRelevanceKeywords mark subjects that read like business mail.
var businessRelevanceKeywords = []string{
	"capital", "distribution", "valuation", "loan", "statement", "report",
	"notice", "investment", "quarterly", "annual",
}

var separators = strings.NewReplacer("_", " ", "-", " ", ".", " ")

// defaultCategories is the fallback category set used when the asset type
// is unknown or no categories are configured for it.
var defaultCategories = []string{
	"financial_statements", "loan_documents", "investor_reports", "legal_documents", "correspondence",
}

// New creates a document classifier.
func New(cfg config.ClassifyConfig, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{cfg: cfg, logger: logger}
}

// DefaultCategories returns the fallback category set.
func DefaultCategories() []string {
	out := make([]string, len(defaultCategories))
	copy(out, defaultCategories)
	return out
}

// Classify scores every allowed category and returns the best one. If no
// pattern fires, the configured default category is returned at a fixed
// low confidence. An unknown asset type falls back to the default
// category set; it is logged and never fatal.
func (c *Classifier) Classify(ctx context.Context, in Input, allowedCategories []string, patterns []*knowledge.ClassificationPattern) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{}

	if !in.AssetType.Valid() {
		c.logger.Warn("unknown asset type, using default category set",
			zap.String("asset_type", string(in.AssetType)),
			zap.String("filename", in.Filename))
		result.Rationale = append(result.Rationale,
			fmt.Sprintf("unknown asset type %q, default category set applied", in.AssetType))
		allowedCategories = nil
	}
	if len(allowedCategories) == 0 {
		allowedCategories = defaultCategories
	}

	// Filename separators count as spaces so "capital call" matches
	// capital_call.pdf.
	text := separators.Replace(strings.ToLower(in.Subject + " " + in.Body + " " + in.Filename))

	allowed := make(map[string]struct{}, len(allowedCategories))
	for _, cat := range allowedCategories {
		allowed[cat] = struct{}{}
	}

	// Per-category pattern score: sum of matching pattern weights, capped
	// at 1.0 so a pile of weak patterns cannot manufacture certainty.
	scores := make(map[string]float64)
	fired := make(map[string][]string)
	for _, p := range patterns {
		if p.AssetType != in.AssetType && in.AssetType.Valid() {
			continue
		}
		if _, ok := allowed[p.Category]; !ok {
			continue
		}
		pat := strings.ToLower(strings.TrimSpace(p.Pattern))
		if pat == "" || !strings.Contains(text, pat) {
			continue
		}
		w := c.patternWeight(p)
		scores[p.Category] += w
		if scores[p.Category] > 1.0 {
			scores[p.Category] = 1.0
		}
		fired[p.Category] = append(fired[p.Category],
			fmt.Sprintf("pattern %q (weight %.2f)", p.Pattern, w))
	}

	category, confidence := bestCategory(scores)
	if category == "" {
		category = c.cfg.DefaultCategory
		confidence = c.cfg.DefaultConfidence
		result.Rationale = append(result.Rationale, "no pattern fired, default category")
	} else {
		result.Rationale = append(result.Rationale, fired[category]...)
	}

	confidence += c.adjustments(in, result)

	result.Category = category
	result.Confidence = clip(confidence)

	c.logger.Debug("classification completed",
		zap.String("filename", in.Filename),
		zap.String("category", result.Category),
		zap.Float64("confidence", result.Confidence))
	return result, nil
}

// patternWeight resolves a pattern's specificity weight: the pattern's
// own weight, the configured weight table, then the length heuristic
// min(len/20, 1.0) as the fallback of last resort.
func (c *Classifier) patternWeight(p *knowledge.ClassificationPattern) float64 {
	if p.Weight > 0 {
		return p.Weight
	}
	if w, ok := c.cfg.PatternWeights[p.Pattern]; ok {
		return w
	}
	w := float64(len(p.Pattern)) / 20.0
	if w > 1.0 {
		w = 1.0
	}
	return w
}

// adjustments applies the additive business rules and records what fired.
func (c *Classifier) adjustments(in Input, result *Result) float64 {
	var total float64

	lowerName := strings.ToLower(in.Filename)
	for _, kw := range professionalKeywords {
		if strings.Contains(lowerName, kw) {
			total += c.cfg.ProfessionalKeywordBoost
			result.Rationale = append(result.Rationale, "professional keyword in filename: "+kw)
			break
		}
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	if _, ok := documentFormatExtensions[ext]; ok {
		total += c.cfg.DocumentFormatBoost
		result.Rationale = append(result.Rationale, "recognized document format: "+ext)
	}

	if len(in.Subject) >= c.cfg.MinSubjectLength {
		lowerSubject := strings.ToLower(in.Subject)
		for _, kw := range businessRelevanceKeywords {
			if strings.Contains(lowerSubject, kw) {
				total += c.cfg.SubjectRelevanceBoost
				result.Rationale = append(result.Rationale, "business-relevant subject: "+kw)
				break
			}
		}
	}

	if in.SenderKnown {
		total += c.cfg.TrustedSenderBoost
		result.Rationale = append(result.Rationale, "known trusted sender")
	}

	return total
}

// bestCategory picks the max-scoring category; ties break on category
// name for determinism.
func bestCategory(scores map[string]float64) (string, float64) {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	best := ""
	bestScore := 0.0
	for _, name := range names {
		if scores[name] > bestScore {
			best = name
			bestScore = scores[name]
		}
	}
	return best, bestScore
}

func clip(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
