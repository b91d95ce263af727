package names

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy extracts candidate names from a listing page.
// Strategies are tried in order and the first one returning anything wins.
type Strategy func(doc *goquery.Document) []string

// DefaultStrategies returns the extraction cascade for a typical school listing
func DefaultStrategies(itemKeywords, detailPaths, cardKeywords []string) []Strategy {
	return []Strategy{
		ListItemStrategy(itemKeywords),
		DetailLinkStrategy(detailPaths),
		CardStrategy(cardKeywords),
		TableStrategy(),
	}
}

// ListItemStrategy takes the first link text of every li whose class mentions a keyword
func ListItemStrategy(keywords []string) Strategy {
	return func(doc *goquery.Document) []string {
		var out []string
		doc.Find("li").Each(func(_ int, li *goquery.Selection) {
			if !classContains(li, keywords) {
				return
			}
			if text := cleanText(li.Find("a[href]").First().Text()); text != "" {
				out = append(out, text)
			}
		})
		return out
	}
}

// DetailLinkStrategy takes the text of anchors pointing at school detail pages
func DetailLinkStrategy(paths []string) Strategy {
	return func(doc *goquery.Document) []string {
		var out []string
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href := strings.ToLower(a.AttrOr("href", ""))
			if !containsAny(href, paths) {
				return
			}
			if text := cleanText(a.Text()); text != "" {
				out = append(out, text)
			}
		})
		return out
	}
}

// CardStrategy reads the heading of every card-like container, or its first link when it has none
func CardStrategy(keywords []string) Strategy {
	return func(doc *goquery.Document) []string {
		var out []string
		doc.Find("div, article, section").Each(func(_ int, card *goquery.Selection) {
			if !classContains(card, keywords) {
				return
			}
			var text string
			if heading := card.Find("h2, h3, h4, h5").First(); heading.Length() > 0 {
				text = heading.Text()
			} else {
				text = card.Find("a[href]").First().Text()
			}
			if text = cleanText(text); text != "" {
				out = append(out, text)
			}
		})
		return out
	}
}

// TableStrategy takes link text from every table cell
func TableStrategy() Strategy {
	return func(doc *goquery.Document) []string {
		var out []string
		doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
			row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
				if text := cleanText(cell.Find("a[href]").First().Text()); text != "" {
					out = append(out, text)
				}
			})
		})
		return out
	}
}

func classContains(s *goquery.Selection, keywords []string) bool {
	class, ok := s.Attr("class")
	if !ok || class == "" {
		return false
	}
	return containsAny(strings.ToLower(class), keywords)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// cleanText collapses runs of whitespace
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
