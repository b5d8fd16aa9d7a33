package scan

import "time"

// Result contains the scan outcome for one attachment.
type Result struct {
	// Filename is the scanned attachment's name
	Filename string `json:"filename"`

	// Findings contains the detected threats
	Findings []Finding `json:"findings,omitempty"`

	// Duration is how long scanning took
	Duration time.Duration `json:"duration"`

	// ByRule maps rule IDs to finding counts
	ByRule map[string]int `json:"by_rule,omitempty"`
}

// Finding represents one detected threat.
type Finding struct {
	// RuleID identifies which rule matched
	RuleID string `json:"rule_id"`

	// Description explains what was found
	Description string `json:"description"`

	// Severity indicates the importance
	Severity string `json:"severity"`

	// Target is whether the filename or the content matched
	Target string `json:"target"`
}

// Clean reports whether no threats were found.
func (r *Result) Clean() bool {
	return len(r.Findings) == 0
}

// Threat returns the highest-severity finding's rule ID, or "" when the
// attachment is clean. This is what the pipeline records and logs.
func (r *Result) Threat() string {
	best := ""
	bestRank := -1
	for _, f := range r.Findings {
		if rank := severityRank(f.Severity); rank > bestRank {
			bestRank = rank
			best = f.RuleID
		}
	}
	return best
}

// FindingsBySeverity returns findings filtered by severity.
func (r *Result) FindingsBySeverity(severity string) []Finding {
	var filtered []Finding
	for _, f := range r.Findings {
		if f.Severity == severity {
			filtered = append(filtered, f)
		}
	}
	return filtered
}

func severityRank(severity string) int {
	switch severity {
	case "high":
		return 2
	case "medium":
		return 1
	default:
		return 0
	}
}
