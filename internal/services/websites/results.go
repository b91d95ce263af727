package websites

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/schoolreach/internal/common"
)

// ResultParser pulls organic result URLs out of a search engine result page
type ResultParser struct {
	RedirectMarkers []string // e.g. "/url?q=", the target follows the marker
	CacheMarkers    []string // links containing these are cached copies
	EngineDomains   []string // host fragments belonging to the engine itself
	MaxResults      int
}

// Parse returns unique candidate URLs in page order, capped at MaxResults
func (p ResultParser) Parse(doc *goquery.Document) []string {
	var out []string
	seen := make(map[string]struct{})

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		candidate := p.candidate(a.AttrOr("href", ""))
		if candidate == "" {
			return true
		}
		if _, ok := seen[candidate]; ok {
			return true
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
		return p.MaxResults <= 0 || len(out) < p.MaxResults
	})

	return out
}

func (p ResultParser) candidate(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	for _, marker := range p.CacheMarkers {
		if marker != "" && strings.Contains(href, marker) {
			return ""
		}
	}

	target := href
	if unwrapped, ok := p.unwrap(href); ok {
		target = unwrapped
	}

	if !common.IsHTTPURL(target) || p.isEngine(target) {
		return ""
	}
	for _, marker := range p.CacheMarkers {
		if marker != "" && strings.Contains(target, marker) {
			return ""
		}
	}
	return target
}

// unwrap extracts the destination from a redirect wrapper such as /url?q=<target>&sa=U
func (p ResultParser) unwrap(href string) (string, bool) {
	for _, marker := range p.RedirectMarkers {
		idx := strings.Index(href, marker)
		if marker == "" || idx < 0 {
			continue
		}
		rest := href[idx+len(marker):]
		if amp := strings.Index(rest, "&"); amp >= 0 {
			rest = rest[:amp]
		}
		decoded, err := url.QueryUnescape(rest)
		if err != nil {
			return "", true
		}
		return decoded, true
	}
	return "", false
}

func (p ResultParser) isEngine(rawURL string) bool {
	host := common.HostOf(rawURL)
	for _, domain := range p.EngineDomains {
		if domain != "" && strings.Contains(host, domain) {
			return true
		}
	}
	return false
}
