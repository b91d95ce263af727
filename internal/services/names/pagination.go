package names

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TotalPages reads the highest page number advertised by the pagination container.
// Both page= query values and plain numeric link text count. Returns 1 when nothing is found.
func TotalPages(doc *goquery.Document, paginationClass string) int {
	if doc == nil {
		return 1
	}
	if paginationClass == "" {
		paginationClass = "pagination"
	}

	maxPage := 1
	doc.Find("." + paginationClass).Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if n := pageParam(a.AttrOr("href", "")); n > maxPage {
			maxPage = n
		}
		if n, err := strconv.Atoi(strings.TrimSpace(a.Text())); err == nil && n > maxPage {
			maxPage = n
		}
	})

	return maxPage
}

func pageParam(href string) int {
	u, err := url.Parse(href)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil {
		return 0
	}
	return n
}
