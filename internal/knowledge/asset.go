package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// AssetProfile describes a tracked investment vehicle.
//
// Identifiers are the short text tokens used to recognize the asset in
// free text. They must be disjoint across assets; the bootstrap loader and
// the conflict gate both enforce this. Profiles are created at bootstrap
// or by admin action, mutated only through the conflict gate, and never
// silently deleted.
type AssetProfile struct {
	ID              string            `json:"asset_id"`
	DealName        string            `json:"deal_name"`
	AssetName       string            `json:"asset_name"`
	Type            AssetType         `json:"asset_type"`
	Identifiers     []string          `json:"identifiers"`
	BusinessContext map[string]string `json:"business_context,omitempty"`
	Confidence      ConfidenceTier    `json:"confidence"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// FactID implements Fact.
func (a *AssetProfile) FactID() string { return a.ID }

// Collection implements Fact.
func (a *AssetProfile) Collection() string { return CollectionAssets }

// IdentityKey implements Fact. Asset id is the identity key.
func (a *AssetProfile) IdentityKey() string { return a.ID }

// Fingerprint implements Fact.
func (a *AssetProfile) Fingerprint() string {
	return fingerprint(a.ID, a.DealName, a.AssetName, string(a.Type), normalizeJoin(a.Identifiers))
}

// Tier implements Fact.
func (a *AssetProfile) Tier() ConfidenceTier { return a.Confidence }

// Validate implements Fact.
func (a *AssetProfile) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: asset id is required", ErrValidation)
	}
	if a.DealName == "" {
		return fmt.Errorf("%w: deal name is required", ErrValidation)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: unknown asset type %q", ErrValidation, a.Type)
	}
	if len(a.Identifiers) == 0 {
		return fmt.Errorf("%w: at least one identifier is required", ErrValidation)
	}
	for _, id := range a.Identifiers {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: identifiers cannot be blank", ErrValidation)
		}
	}
	return nil
}

// NormalizedIdentifiers returns the identifiers lowercased, trimmed, and
// sorted, for matching and disjointness checks.
func (a *AssetProfile) NormalizedIdentifiers() []string {
	out := make([]string, 0, len(a.Identifiers))
	for _, id := range a.Identifiers {
		out = append(out, strings.ToLower(strings.TrimSpace(id)))
	}
	sort.Strings(out)
	return out
}

// CheckIdentifierDisjointness verifies no identifier appears in more than
// one asset. Returns an error naming the first shared identifier found.
func CheckIdentifierDisjointness(assets []*AssetProfile) error {
	seen := make(map[string]string) // identifier -> asset id
	for _, a := range assets {
		for _, id := range a.NormalizedIdentifiers() {
			if owner, ok := seen[id]; ok && owner != a.ID {
				return fmt.Errorf("%w: identifier %q is claimed by both %s and %s",
					ErrValidation, id, owner, a.ID)
			}
			seen[id] = a.ID
		}
	}
	return nil
}

// SenderMapping associates a normalized email address with the assets its
// mail tends to concern. Read-heavy; updated by admin action or learned
// association through the conflict gate.
type SenderMapping struct {
	ID           string         `json:"id"`
	Address      string         `json:"address"` // normalized, unique
	AssetIDs     []string       `json:"asset_ids"`
	TrustScore   float64        `json:"trust_score"` // [0,1]
	Organization string         `json:"organization,omitempty"`
	Confidence   ConfidenceTier `json:"confidence"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NormalizeAddress canonicalizes an email address for lookup.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// FactID implements Fact.
func (s *SenderMapping) FactID() string { return s.ID }

// Collection implements Fact.
func (s *SenderMapping) Collection() string { return CollectionSenders }

// IdentityKey implements Fact. The normalized address is the identity key.
func (s *SenderMapping) IdentityKey() string { return NormalizeAddress(s.Address) }

// Fingerprint implements Fact.
func (s *SenderMapping) Fingerprint() string {
	return fingerprint(NormalizeAddress(s.Address), normalizeJoin(s.AssetIDs),
		fmt.Sprintf("%.4f", s.TrustScore), s.Organization)
}

// Tier implements Fact.
func (s *SenderMapping) Tier() ConfidenceTier { return s.Confidence }

// Validate implements Fact.
func (s *SenderMapping) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: sender mapping id is required", ErrValidation)
	}
	addr := NormalizeAddress(s.Address)
	if addr == "" || !strings.Contains(addr, "@") {
		return fmt.Errorf("%w: %q is not a valid sender address", ErrValidation, s.Address)
	}
	if s.TrustScore < 0 || s.TrustScore > 1 {
		return fmt.Errorf("%w: trust score must be in [0, 1], got %v", ErrValidation, s.TrustScore)
	}
	if len(s.AssetIDs) == 0 {
		return fmt.Errorf("%w: sender mapping requires at least one asset id", ErrValidation)
	}
	return nil
}
