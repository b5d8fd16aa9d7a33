// Package identify scores candidate assets for an inbound email and
// attachment. Scoring combines identifier text matching, sender trust
// seeding, and similarity recall of past routing decisions.
package identify

import (
	"context"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrouter/internal/config"
	"github.com/fyrsmithlabs/docrouter/internal/knowledge"
	"github.com/fyrsmithlabs/docrouter/internal/similarity"
)

// Input is the email context an identification runs against. A nil-ish
// subject or body is treated as the empty string, never an error.
type Input struct {
	Sender   string
	Subject  string
	Body     string
	Filename string
}

// Candidate is one ranked asset with its match confidence.
type Candidate struct {
	AssetID    string              `json:"asset_id"`
	AssetType  knowledge.AssetType `json:"asset_type"`
	Confidence float64             `json:"confidence"`
	Rationale  []string            `json:"rationale"`
}

// Identifier scores candidate assets for an email and attachment.
type Identifier struct {
	cfg    config.IdentifyConfig
	lookup *similarity.Lookup
	logger *zap.Logger
}

// genericRelevanceKeywords are document-domain words that appear in mail
// about any asset. They are deliberately a separate list from asset
// identifiers: an identifier that happens to be on this list gets a
// penalty, but identifiers are never filtered against it. Conflating the
// two lists makes specific single-identifier emails score below
// multi-identifier ones.
var genericRelevanceKeywords = map[string]struct{}{
	"fund": {}, "report": {}, "statement": {}, "document": {},
	"documents": {}, "capital": {}, "investment": {}, "quarterly": {},
	"annual": {}, "notice": {}, "update": {}, "account": {},
}

// New creates an asset identifier. lookup may be nil, disabling episodic
// recall entirely.
func New(cfg config.IdentifyConfig, lookup *similarity.Lookup, logger *zap.Logger) *Identifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Identifier{cfg: cfg, lookup: lookup, logger: logger}
}

// Identify returns all assets scoring at least the qualifying confidence,
// ranked best first. Distinct attachments in one email may map to
// distinct assets, so the full ranking is returned, never just the top
// candidate. An empty asset catalog yields an empty result, not an error.
// The degraded flag is true when episodic recall timed out or failed and
// scoring proceeded without it.
func (i *Identifier) Identify(ctx context.Context, in Input, assets []*knowledge.AssetProfile, senders map[string]*knowledge.SenderMapping) ([]Candidate, bool, error) {
	if len(assets) == 0 {
		return nil, false, nil
	}

	text := strings.ToLower(in.Subject + " " + in.Body + " " + in.Filename)
	tokens := tokenize(text)

	// Sender lookup seeds candidates; it never short-circuits scoring.
	seeded := make(map[string]bool)
	if mapping, ok := senders[knowledge.NormalizeAddress(in.Sender)]; ok &&
		mapping.TrustScore >= i.cfg.SenderTrustFloor {
		for _, assetID := range mapping.AssetIDs {
			seeded[assetID] = true
		}
	}

	// Episodic recall, degraded to nothing on timeout.
	boosts, degraded := i.episodicBoosts(ctx, in)

	candidates := make([]Candidate, 0, len(assets))
	for _, asset := range assets {
		c := i.scoreAsset(asset, text, tokens, in, seeded[asset.ID], boosts[asset.ID])
		if c.Confidence >= i.cfg.MinQualifyingConfidence {
			candidates = append(candidates, c)
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Confidence > candidates[b].Confidence
	})

	i.logger.Debug("asset identification completed",
		zap.String("filename", in.Filename),
		zap.Int("assets", len(assets)),
		zap.Int("candidates", len(candidates)))
	return candidates, degraded, nil
}

func (i *Identifier) scoreAsset(asset *knowledge.AssetProfile, text string, tokens map[string]struct{}, in Input, seeded bool, boost float64) Candidate {
	c := Candidate{AssetID: asset.ID, AssetType: asset.Type}

	var best float64
	var bestIdentifier string
	matched := 0
	genericPenalty := 0.0

	for _, id := range asset.NormalizedIdentifiers() {
		score := i.matchTier(id, text, tokens)
		if score == 0 {
			continue
		}
		matched++
		if _, generic := genericRelevanceKeywords[id]; generic {
			// Generic identifiers match everything; they must not carry
			// the same weight as a deal-specific token.
			genericPenalty += 0.10
		}
		if score > best {
			best = score
			bestIdentifier = id
		}
	}

	if best > 0 {
		c.Rationale = append(c.Rationale, "identifier match: "+bestIdentifier)

		// Bonus per extra matched identifier, capped.
		bonus := float64(matched-1) * i.cfg.ExtraMatchBonus
		if bonus > i.cfg.ExtraMatchBonusCap {
			bonus = i.cfg.ExtraMatchBonusCap
		}
		if bonus > 0 {
			c.Rationale = append(c.Rationale, "multiple identifiers matched")
		}

		best += bonus
		best -= dilutionPenalty(in.Filename, bestIdentifier)
		if genericPenalty > 0 {
			best -= genericPenalty
			c.Rationale = append(c.Rationale, "generic identifier penalty")
		}
	}

	if seeded && i.cfg.SenderSeedScore > best {
		best = i.cfg.SenderSeedScore
		c.Rationale = append(c.Rationale, "trusted sender mapping")
	}

	if boost > 0 {
		best += boost
		c.Rationale = append(c.Rationale, "similar past decisions")
	}

	c.Confidence = clip(best)
	return c
}

// matchTier classifies how strongly one identifier appears in the text:
// exact token > all words present > substring > fuzzy.
func (i *Identifier) matchTier(identifier, text string, tokens map[string]struct{}) float64 {
	if _, ok := tokens[identifier]; ok {
		return i.cfg.ExactTokenScore
	}

	words := strings.Fields(identifier)
	if len(words) > 1 {
		all := true
		for _, w := range words {
			if _, ok := tokens[w]; !ok {
				all = false
				break
			}
		}
		if all {
			return i.cfg.AllWordsScore
		}
	}

	if strings.Contains(text, identifier) {
		return i.cfg.SubstringScore
	}

	// Fuzzy: best normalized edit-distance similarity against any token.
	for token := range tokens {
		if fuzzyRatio(identifier, token) >= i.cfg.FuzzyThreshold {
			return i.cfg.FuzzyScore
		}
	}
	return 0
}

func (i *Identifier) episodicBoosts(ctx context.Context, in Input) (map[string]float64, bool) {
	if i.lookup == nil {
		return nil, false
	}
	query := strings.TrimSpace(in.Subject + " " + in.Body + " " + in.Filename)
	results, degraded := i.lookup.Recall(ctx, query, 10)
	if degraded {
		i.logger.Debug("proceeding without similarity signal")
		return nil, true
	}

	boosts := make(map[string]float64)
	for _, r := range results {
		assetID := r.Metadata["asset_id"]
		if assetID == "" {
			continue
		}
		weight := i.cfg.RecordWeightAuto
		if r.Metadata["source"] == string(knowledge.SourceHumanCorrection) {
			weight = i.cfg.RecordWeightCorrection
		}
		boosts[assetID] += weight * r.Score
	}
	return boosts, false
}

// dilutionPenalty reduces confidence when the filename is long relative
// to the matched identifier; a two-character hit inside a fifty-character
// generated name is weak evidence.
func dilutionPenalty(filename, identifier string) float64 {
	if filename == "" || identifier == "" {
		return 0
	}
	ratio := float64(len(filename)) / float64(len(identifier))
	if ratio <= 4 {
		return 0
	}
	penalty := (ratio - 4) * 0.01
	if penalty > 0.15 {
		penalty = 0.15
	}
	return penalty
}

// fuzzyRatio is a normalized edit-distance similarity in [0,1].
func fuzzyRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	current := strings.Builder{}
	flush := func() {
		if current.Len() > 0 {
			tokens[current.String()] = struct{}{}
			current.Reset()
		}
	}
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
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
