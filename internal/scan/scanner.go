package scan

import (
	"context"
	"sync"
	"time"

	"github.com/fyrsmithlabs/docrouter/internal/pipeline"
)

// Scanner runs the configured threat rules over attachments. It
// implements pipeline.SecurityScanner.
type Scanner struct {
	config *Config
	mu     sync.RWMutex
}

// New creates a Scanner with the given configuration. If config is nil,
// DefaultConfig() is used.
func New(cfg *Config) (*Scanner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scanner{config: cfg}, nil
}

// MustNew creates a Scanner, panicking on error. Only for use with the
// built-in rules, which are known to compile.
func MustNew(cfg *Config) *Scanner {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Scan implements pipeline.SecurityScanner. The returned threat is the
// highest-severity matching rule's ID, or "" for a clean attachment.
func (s *Scanner) Scan(ctx context.Context, att pipeline.Attachment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.Check(att.Filename, att.Bytes).Threat(), nil
}

// Check runs every rule and returns the full result.
func (s *Scanner) Check(filename string, content []byte) *Result {
	start := time.Now()
	result := &Result{
		Filename: filename,
		Findings: make([]Finding, 0),
		ByRule:   make(map[string]int),
	}

	if !s.config.Enabled {
		result.Duration = time.Since(start)
		return result
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	text := string(content)
	for _, rule := range s.config.compiledRules {
		subject := text
		if rule.Target == TargetFilename {
			subject = filename
		}
		if subject == "" {
			continue
		}

		// Keyword pre-check before the full pattern
		if len(rule.keywords) > 0 {
			hasKeyword := false
			for _, kw := range rule.keywords {
				if kw.MatchString(subject) {
					hasKeyword = true
					break
				}
			}
			if !hasKeyword {
				continue
			}
		}

		match := rule.pattern.FindString(subject)
		if match == "" {
			continue
		}
		if s.isAllowed(match) {
			continue
		}

		result.Findings = append(result.Findings, Finding{
			RuleID:      rule.ID,
			Description: rule.Description,
			Severity:    rule.Severity,
			Target:      rule.Target,
		})
		result.ByRule[rule.ID]++
	}

	result.Duration = time.Since(start)
	return result
}

// IsEnabled returns whether scanning is enabled.
func (s *Scanner) IsEnabled() bool {
	return s.config.Enabled
}

// isAllowed checks if the match is in the allow list.
func (s *Scanner) isAllowed(match string) bool {
	for _, pattern := range s.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

// Compile-time check that Scanner implements pipeline.SecurityScanner.
var _ pipeline.SecurityScanner = (*Scanner)(nil)
