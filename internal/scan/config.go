package scan

import (
	"fmt"
	"regexp"
)

// Rule targets select what a rule's pattern runs against.
const (
	TargetFilename = "filename"
	TargetContent  = "content"
)

// Config configures the scanner.
type Config struct {
	// Enabled controls whether scanning is active (default: true)
	Enabled bool `koanf:"enabled"`

	// Rules defines the detection rules
	Rules []Rule `koanf:"rules"`

	// AllowList contains patterns whose matches are never reported
	AllowList []string `koanf:"allow_list"`

	// compiled patterns (populated by Validate)
	compiledRules     []*compiledRule
	compiledAllowList []*regexp.Regexp
}

// Rule defines a threat detection rule.
type Rule struct {
	// ID is the unique identifier for this rule
	ID string `koanf:"id"`

	// Description explains what this rule detects
	Description string `koanf:"description"`

	// Target is filename or content
	Target string `koanf:"target"`

	// Pattern is the regex pattern to match
	Pattern string `koanf:"pattern"`

	// Keywords are optional fast pre-checks; the pattern only runs when
	// one of them is present
	Keywords []string `koanf:"keywords"`

	// Severity indicates the importance (high, medium, low)
	Severity string `koanf:"severity"`
}

// compiledRule holds a compiled rule.
type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig returns a configuration with the standard threat rules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Rules:     DefaultRules(),
		AllowList: []string{},
	}
}

// Validate validates and compiles the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	c.compiledRules = make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		switch rule.Target {
		case TargetFilename, TargetContent:
		default:
			return fmt.Errorf("rule %s: target must be filename or content, got %q", rule.ID, rule.Target)
		}

		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}

		compiled := &compiledRule{
			Rule:     rule,
			pattern:  pattern,
			keywords: make([]*regexp.Regexp, 0, len(rule.Keywords)),
		}

		// Keywords are case-insensitive literals
		for _, kw := range rule.Keywords {
			kwPattern, err := regexp.Compile("(?i)" + regexp.QuoteMeta(kw))
			if err != nil {
				return fmt.Errorf("rule %s: invalid keyword %q: %w", rule.ID, kw, err)
			}
			compiled.keywords = append(compiled.keywords, kwPattern)
		}

		c.compiledRules = append(c.compiledRules, compiled)
	}

	c.compiledAllowList = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, pattern := range c.AllowList {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		c.compiledAllowList = append(c.compiledAllowList, compiled)
	}

	return nil
}
