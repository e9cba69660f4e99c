package security

import (
	"regexp"
	"strings"
)

// injectionPatterns match instruction-override phrasings. Case-insensitive.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all|any) (previous|prior) instructions`),
	regexp.MustCompile(`(?i)system override`),
	regexp.MustCompile(`(?i)reveal (your|the) system prompt`),
	regexp.MustCompile(`(?i)show (your|the) system prompt`),
	regexp.MustCompile(`(?i)disclose (your|the) system prompt`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)do anything now`),
	regexp.MustCompile(`(?i)developer message`),
	regexp.MustCompile(`(?i)act as`),
	regexp.MustCompile(`(?i)bypass`),
}

// suspiciousMarkers are literal phrases stripped line-wise on sight.
var suspiciousMarkers = []string{
	"SYSTEM OVERRIDE",
	"IGNORE ALL PREVIOUS INSTRUCTIONS",
	"REVEAL YOUR SYSTEM PROMPT",
}

// PatternVerdict is the always-available detector's output.
type PatternVerdict struct {
	IsMalicious    bool     `json:"is_malicious"`
	PatternMatches []string `json:"pattern_matches"`
	Markers        []string `json:"markers"`
	SanitizedText  string   `json:"sanitized_text"`
}

// InspectPatterns matches the text against the fixed injection patterns and
// literal markers. On any match the offending lines are stripped and the
// remainder returned as the sanitized text; is_malicious is reported
// regardless of how usable that remainder is.
func InspectPatterns(text string) PatternVerdict {
	var matches []string
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			matches = append(matches, re.String())
		}
	}

	var markers []string
	for _, marker := range suspiciousMarkers {
		if strings.Contains(text, marker) {
			markers = append(markers, marker)
		}
	}

	verdict := PatternVerdict{
		IsMalicious:    len(matches) > 0 || len(markers) > 0,
		PatternMatches: matches,
		Markers:        markers,
		SanitizedText:  text,
	}
	if verdict.IsMalicious {
		verdict.SanitizedText = stripOffendingLines(text)
	}
	return verdict
}

func stripOffendingLines(text string) string {
	var kept []string
line:
	for _, line := range strings.Split(text, "\n") {
		for _, marker := range suspiciousMarkers {
			if strings.Contains(line, marker) {
				continue line
			}
		}
		for _, re := range injectionPatterns {
			if re.MatchString(line) {
				continue line
			}
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
