package emails

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Strategy looks for addresses in one region of a page.
// Strategies run in order; the first one finding anything decides the result.
type Strategy func(doc *goquery.Document) []string

// DefaultStrategies returns the cascade: footer, mailto links, contact sections, whole page
func DefaultStrategies(m *Matcher, sectionKeywords []string) []Strategy {
	return []Strategy{
		FooterStrategy(m),
		MailtoStrategy(m),
		ContactSectionStrategy(m, sectionKeywords),
		PageTextStrategy(m),
	}
}

// FooterStrategy searches <footer> elements, or elements whose class mentions footer when there are none
func FooterStrategy(m *Matcher) Strategy {
	return func(doc *goquery.Document) []string {
		footers := doc.Find("footer")
		if footers.Length() == 0 {
			footers = doc.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
				return strings.Contains(strings.ToLower(s.AttrOr("class", "")), "footer")
			})
		}

		var out []string
		footers.Each(func(_ int, footer *goquery.Selection) {
			out = append(out, m.FindAll(nodeText(footer))...)
		})
		return dedupe(out)
	}
}

// MailtoStrategy reads addresses from mailto: links
func MailtoStrategy(m *Matcher) Strategy {
	return func(doc *goquery.Document) []string {
		var out []string
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			if address := mailtoAddress(a.AttrOr("href", "")); address != "" && m.Valid(address) {
				out = append(out, address)
			}
		})
		return dedupe(out)
	}
}

// mailtoAddress strips the scheme and any ?subject=... query
func mailtoAddress(href string) string {
	href = strings.TrimSpace(href)
	if len(href) < len("mailto:") || !strings.EqualFold(href[:len("mailto:")], "mailto:") {
		return ""
	}
	address := href[len("mailto:"):]
	if idx := strings.Index(address, "?"); idx >= 0 {
		address = address[:idx]
	}
	if unescaped, err := url.PathUnescape(address); err == nil {
		address = unescaped
	}
	return strings.TrimSpace(address)
}

// ContactSectionStrategy searches the parent element of every text node mentioning a contact keyword
func ContactSectionStrategy(m *Matcher, keywords []string) Strategy {
	folded := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = fold(k); k != "" {
			folded = append(folded, k)
		}
	}

	return func(doc *goquery.Document) []string {
		var out []string
		eachTextNode(doc.Selection, func(n *html.Node) {
			if n.Parent == nil || !containsAny(fold(n.Data), folded) {
				return
			}
			out = append(out, m.FindAll(textOfNode(n.Parent))...)
		})
		return dedupe(out)
	}
}

// PageTextStrategy searches all visible text of the page
func PageTextStrategy(m *Matcher) Strategy {
	return func(doc *goquery.Document) []string {
		return m.FindAll(nodeText(doc.Selection))
	}
}

// ExtractFromDocument runs the cascade and returns the first address found, or ""
func ExtractFromDocument(doc *goquery.Document, strategies []Strategy) string {
	for _, strategy := range strategies {
		if found := strategy(doc); len(found) > 0 {
			return found[0]
		}
	}
	return ""
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
