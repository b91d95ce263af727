package emails

import (
	"regexp"
	"strings"
)

var (
	emailPattern     = regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)
	fullEmailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)
)

// Asset names such as logo@2x.png look like addresses to the pattern
var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

// Matcher finds contact addresses in text and drops placeholders
type Matcher struct {
	placeholders []string
}

// NewMatcher creates a matcher that rejects addresses containing any placeholder fragment
func NewMatcher(placeholders []string) *Matcher {
	lowered := make([]string, 0, len(placeholders))
	for _, p := range placeholders {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &Matcher{placeholders: lowered}
}

// FindAll returns unique acceptable addresses in order of first appearance
func (m *Matcher) FindAll(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, candidate := range emailPattern.FindAllString(text, -1) {
		if !m.acceptable(candidate) {
			continue
		}
		key := strings.ToLower(candidate)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

// Valid reports whether value is exactly one acceptable address
func (m *Matcher) Valid(value string) bool {
	return fullEmailPattern.MatchString(value) && m.acceptable(value)
}

func (m *Matcher) acceptable(address string) bool {
	lower := strings.ToLower(address)
	for _, p := range m.placeholders {
		if strings.Contains(lower, p) {
			return false
		}
	}
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return true
}
