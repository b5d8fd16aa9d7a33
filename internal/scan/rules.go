package scan

// DefaultRules returns the built-in threat detection rules. They cover
// the payloads seen in real deal-team inboxes: executables renamed to
// look like documents, macro droppers, and HTML smuggling. Deployments
// add rules via the scan.rules config section.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "executable-header",
			Description: "Windows executable (MZ header)",
			Target:      TargetContent,
			Pattern:     `^MZ`,
			Severity:    "high",
		},
		{
			ID:          "eicar-test-signature",
			Description: "EICAR antivirus test file",
			Target:      TargetContent,
			Pattern:     `EICAR-STANDARD-ANTIVIRUS-TEST-FILE`,
			Keywords:    []string{"EICAR"},
			Severity:    "high",
		},
		{
			ID:          "masqueraded-extension",
			Description: "executable masquerading as a document",
			Target:      TargetFilename,
			Pattern:     `(?i)\.(pdf|docx?|xlsx?|pptx?|csv|txt)\s*\.(exe|scr|bat|cmd|com|pif|vbs|js|jar|msi)$`,
			Severity:    "high",
		},
		{
			ID:          "office-macro",
			Description: "macro-enabled Office payload",
			Target:      TargetContent,
			Pattern:     `vbaProject\.bin`,
			Keywords:    []string{"vbaProject"},
			Severity:    "medium",
		},
		{
			ID:          "encoded-powershell",
			Description: "encoded PowerShell command",
			Target:      TargetContent,
			Pattern:     `(?i)powershell[^\n]{0,60}-e(nc|ncodedcommand)?\s+[A-Za-z0-9+/=]{20,}`,
			Keywords:    []string{"powershell"},
			Severity:    "high",
		},
		{
			ID:          "html-smuggling",
			Description: "script block inside an HTML attachment",
			Target:      TargetContent,
			Pattern:     `(?i)<script[\s>]`,
			Keywords:    []string{"script"},
			Severity:    "medium",
		},
	}
}
