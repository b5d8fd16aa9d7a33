package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fact is the contract every stored knowledge item satisfies.
//
// IdentityKey is unique within the fact's collection (asset id, sender
// address, extension, ...). Fingerprint is a digest of the normalized
// content fields used for exact-duplicate detection: two facts with equal
// fingerprints are the same fact and the second ingest is a no-op.
type Fact interface {
	// FactID returns the stable unique id.
	FactID() string

	// Collection returns the collection this fact belongs to.
	Collection() string

	// IdentityKey returns the per-collection unique key.
	IdentityKey() string

	// Fingerprint returns the content digest over normalized fields.
	Fingerprint() string

	// Tier returns the confidence tier used by conflict resolution.
	Tier() ConfidenceTier

	// Validate checks required identity and content fields.
	Validate() error
}

// fingerprint digests normalized field values in order. Fields are
// lowercased and whitespace-trimmed so formatting differences don't defeat
// duplicate detection.
func fingerprint(fields ...string) string {
	h := sha256.New()
	for _, f := range fields {
		h.Write([]byte(strings.ToLower(strings.TrimSpace(f))))
		h.Write([]byte{0}) // field separator
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeJoin canonicalizes a string set for fingerprinting so element
// order cannot produce distinct fingerprints for the same set.
func normalizeJoin(values []string) string {
	norm := make([]string, 0, len(values))
	for _, v := range values {
		norm = append(norm, strings.ToLower(strings.TrimSpace(v)))
	}
	sort.Strings(norm)
	return strings.Join(norm, ",")
}
