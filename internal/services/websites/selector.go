package websites

import (
	"strings"

	"github.com/ternarybob/schoolreach/internal/common"
)

// IsOfficial reports whether the host of rawURL ends in one of the official domains.
// Domains match on label boundaries, so "bel.tr" matches "ibb.bel.tr" but not "isbel.tr".
func IsOfficial(rawURL string, officialDomains []string) bool {
	host := common.HostOf(rawURL)
	if host == "" {
		return false
	}
	for _, domain := range officialDomains {
		bare := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
		if bare == "" {
			continue
		}
		if host == bare || strings.HasSuffix(host, "."+bare) {
			return true
		}
	}
	return false
}

// SelectBest returns the first official URL, else the first URL, else ""
func SelectBest(urls []string, officialDomains []string) string {
	for _, u := range urls {
		if IsOfficial(u, officialDomains) {
			return u
		}
	}
	if len(urls) > 0 {
		return urls[0]
	}
	return ""
}
