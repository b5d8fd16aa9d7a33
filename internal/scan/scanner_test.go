package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docrouter/internal/pipeline"
)

func TestScanner_CleanAttachment(t *testing.T) {
	s := MustNew(nil)

	result := s.Check("q3_report.pdf", []byte("%PDF-1.7 quarterly report"))
	assert.True(t, result.Clean())
	assert.Empty(t, result.Threat())
}

func TestScanner_ExecutableHeader(t *testing.T) {
	s := MustNew(nil)

	result := s.Check("statement.pdf", []byte("MZ\x90\x00\x03payload"))
	require.False(t, result.Clean())
	assert.Equal(t, "executable-header", result.Threat())
}

func TestScanner_MasqueradedExtension(t *testing.T) {
	s := MustNew(nil)

	// Filename rules fire even with no content available.
	result := s.Check("capital_call.pdf.exe", nil)
	require.False(t, result.Clean())
	assert.Equal(t, "masqueraded-extension", result.Threat())
}

func TestScanner_Eicar(t *testing.T) {
	s := MustNew(nil)

	result := s.Check("test.com", []byte(`X5O!...EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`))
	assert.Equal(t, "eicar-test-signature", result.Threat())
}

func TestScanner_HighSeverityWinsThreat(t *testing.T) {
	s := MustNew(nil)

	// Both the medium html-smuggling rule and the high encoded-powershell
	// rule match; the threat reports the high one.
	content := []byte("<script>run()</script> powershell -enc aGVsbG8gd29ybGQgaGVsbG8=")
	result := s.Check("invite.html", content)
	require.Len(t, result.Findings, 2)
	assert.Equal(t, "encoded-powershell", result.Threat())
	assert.Len(t, result.FindingsBySeverity("medium"), 1)
}

func TestScanner_AllowList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowList = []string{`(?i)<script src="https://internal\.example\.com/`}
	s := MustNew(cfg)

	result := s.Check("report.html",
		[]byte(`<script src="https://internal.example.com/chart.js">`))
	assert.True(t, result.Clean())
}

func TestScanner_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	s := MustNew(cfg)

	result := s.Check("payload.pdf.exe", []byte("MZ"))
	assert.True(t, result.Clean())
	assert.False(t, s.IsEnabled())
}

func TestConfig_Validate_RejectsBadRules(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"missing id", Rule{Pattern: "x", Target: TargetContent}},
		{"missing pattern", Rule{ID: "r", Target: TargetContent}},
		{"bad target", Rule{ID: "r", Pattern: "x", Target: "body"}},
		{"bad pattern", Rule{ID: "r", Pattern: "([", Target: TargetContent}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Enabled: true, Rules: []Rule{tt.rule}}
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestScanner_ImplementsPipelineScanner(t *testing.T) {
	s := MustNew(nil)

	threat, err := s.Scan(context.Background(), pipeline.Attachment{
		Filename: "wire_instructions.pdf.scr",
	})
	require.NoError(t, err)
	assert.Equal(t, "masqueraded-extension", threat)
}
