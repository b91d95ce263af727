package emails

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/schoolreach/internal/common"
)

// FindContactLinks returns absolute URLs of links that look like contact pages,
// deduplicated in page order and capped at maxLinks. A non-positive maxLinks
// means contact pages are not followed.
func FindContactLinks(doc *goquery.Document, pageURL string, keywords []string, maxLinks int) []string {
	if maxLinks <= 0 {
		return nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	folded := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = fold(k); k != "" {
			folded = append(folded, k)
		}
	}

	var out []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := a.AttrOr("href", "")
		hrefText := href
		if unescaped, err := url.PathUnescape(href); err == nil {
			hrefText = unescaped
		}

		if !containsAny(fold(a.Text()), folded) && !containsAny(fold(hrefText), folded) {
			return true
		}

		resolved := common.ResolveURL(base, href)
		if resolved == "" || !common.IsHTTPURL(resolved) {
			return true
		}
		if _, ok := seen[resolved]; ok {
			return true
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
		return len(out) < maxLinks
	})

	return out
}

// NormalizeWebsite adds a scheme to bare hosts such as "okul.k12.tr"
func NormalizeWebsite(website string) string {
	website = strings.TrimSpace(website)
	if website == "" {
		return ""
	}
	if !strings.Contains(website, "://") {
		website = "http://" + website
	}
	return website
}
