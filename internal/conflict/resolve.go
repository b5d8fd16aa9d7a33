package conflict

import (
	"fmt"

	"github.com/fyrsmithlabs/docrouter/internal/knowledge"
)

// Classify detects contradictions between an existing fact and a candidate
// that collided on the same identity key. Both facts are always the same
// concrete type, since they came from the same collection.
//
// The severity table:
//
//	asset-type mismatch            high
//	allow/deny mismatch            high
//	security-level mismatch        medium
//	sender-organization mismatch   medium
//	explicit rule contradiction    high
func Classify(existing, candidate knowledge.Fact) []Finding {
	var findings []Finding

	switch ex := existing.(type) {
	case *knowledge.AssetProfile:
		cand, ok := candidate.(*knowledge.AssetProfile)
		if !ok {
			break
		}
		if ex.Type != cand.Type {
			findings = append(findings, Finding{
				Type:     knowledge.ConflictAssetTypeMismatch,
				Severity: knowledge.SeverityHigh,
				Detail:   fmt.Sprintf("asset %s typed %s by existing profile, %s by candidate", ex.ID, ex.Type, cand.Type),
			})
		}

	case *knowledge.FileTypeRule:
		cand, ok := candidate.(*knowledge.FileTypeRule)
		if !ok {
			break
		}
		if ex.Allowed != cand.Allowed {
			findings = append(findings, Finding{
				Type:     knowledge.ConflictAllowDenyMismatch,
				Severity: knowledge.SeverityHigh,
				Detail:   fmt.Sprintf("extension %s allowed=%t vs candidate allowed=%t", ex.IdentityKey(), ex.Allowed, cand.Allowed),
			})
		}
		if ex.Security != cand.Security {
			findings = append(findings, Finding{
				Type:     knowledge.ConflictSecurityMismatch,
				Severity: knowledge.SeverityMedium,
				Detail:   fmt.Sprintf("extension %s security %s vs candidate %s", ex.IdentityKey(), ex.Security, cand.Security),
			})
		}

	case *knowledge.SenderMapping:
		cand, ok := candidate.(*knowledge.SenderMapping)
		if !ok {
			break
		}
		if ex.Organization != "" && cand.Organization != "" && ex.Organization != cand.Organization {
			findings = append(findings, Finding{
				Type:     knowledge.ConflictSenderOrgMismatch,
				Severity: knowledge.SeverityMedium,
				Detail:   fmt.Sprintf("sender %s organization %q vs candidate %q", ex.IdentityKey(), ex.Organization, cand.Organization),
			})
		}

	case *knowledge.ClassificationPattern:
		cand, ok := candidate.(*knowledge.ClassificationPattern)
		if !ok {
			break
		}
		if ex.Category != cand.Category {
			findings = append(findings, Finding{
				Type:     knowledge.ConflictRuleContradiction,
				Severity: knowledge.SeverityHigh,
				Detail:   fmt.Sprintf("pattern %q maps to %q vs candidate %q", ex.Pattern, ex.Category, cand.Category),
			})
		}
	}

	return findings
}

// Resolve is the pure resolution function over confidence tiers. The
// candidate wins only when its tier exceeds the existing tier by at least
// one full step; a weaker candidate is rejected; a tie always goes to
// human review with the existing fact staying authoritative.
func Resolve(existing, candidate knowledge.ConfidenceTier) Action {
	switch {
	case candidate >= existing+1:
		return ActionUpdate
	case candidate < existing:
		return ActionReject
	default:
		return ActionHumanReview
	}
}

// worst returns the highest severity among findings. High outranks medium.
func worst(findings []Finding) (knowledge.ConflictType, knowledge.ConflictSeverity) {
	ctype := findings[0].Type
	severity := findings[0].Severity
	for _, f := range findings[1:] {
		if severity != knowledge.SeverityHigh && f.Severity == knowledge.SeverityHigh {
			ctype = f.Type
			severity = f.Severity
		}
	}
	return ctype, severity
}
