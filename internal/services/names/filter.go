package names

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Filter rejects listing UI text posing as school names
type Filter struct {
	minLength int
	maxLength int
	noise     []string // folded
}

// NewFilter creates a filter. noise entries are matched as case-insensitive substrings.
func NewFilter(minLength, maxLength int, noise []string) *Filter {
	folded := make([]string, 0, len(noise))
	for _, n := range noise {
		if n = fold(strings.TrimSpace(n)); n != "" {
			folded = append(folded, n)
		}
	}
	return &Filter{
		minLength: minLength,
		maxLength: maxLength,
		noise:     folded,
	}
}

// IsValid reports whether name is long enough and contains no UI noise.
// Used for names that are already stored.
func (f *Filter) IsValid(name string) bool {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < f.minLength {
		return false
	}
	return !f.isNoise(name)
}

// Accept applies the stricter bounds used for freshly scraped candidates
func (f *Filter) Accept(candidate string) bool {
	n := utf8.RuneCountInString(candidate)
	if n <= f.minLength || n >= f.maxLength {
		return false
	}
	return !f.isNoise(candidate)
}

func (f *Filter) isNoise(text string) bool {
	folded := fold(text)
	for _, n := range f.noise {
		if strings.Contains(folded, n) {
			return true
		}
	}
	return false
}

// fold lower-cases with Turkish rules and merges dotted and dotless i,
// so "İSTANBUL", "Istanbul" and "istanbul" compare equal
func fold(s string) string {
	return strings.ReplaceAll(strings.ToLowerSpecial(unicode.TurkishCase, s), "ı", "i")
}
