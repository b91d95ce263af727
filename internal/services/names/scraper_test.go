package names

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
)

// stubFetcher serves canned HTML keyed by URL
type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (*interfaces.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	body, ok := f.pages[url]
	if !ok {
		return nil, interfaces.ErrFetchExhausted
	}
	return &interfaces.Page{URL: url, StatusCode: 200, Body: body, Attempts: 1}, nil
}

func (f *stubFetcher) Close() error { return nil }

func newTestScraper(fetcher interfaces.Fetcher) *Scraper {
	s := NewScraper(common.NewDefaultConfig().Listing, fetcher, arbor.NewNoOpLogger())
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return s
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestStrategies(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		html     string
		want     []string
	}{
		{
			name:     "list items",
			strategy: ListItemStrategy([]string{"school", "okul"}),
			html:     `<ul><li class="okul-item"><a href="/x">  Kadıköy   Ortaokulu </a></li><li class="ad"><a href="/y">Reklam</a></li></ul>`,
			want:     []string{"Kadıköy Ortaokulu"},
		},
		{
			name:     "detail links",
			strategy: DetailLinkStrategy([]string{"/okul/"}),
			html:     `<a href="/OKUL/besiktas">Beşiktaş Ortaokulu</a><a href="/hakkimizda">Hakkımızda</a>`,
			want:     []string{"Beşiktaş Ortaokulu"},
		},
		{
			name:     "cards prefer headings",
			strategy: CardStrategy([]string{"card"}),
			html:     `<div class="card"><h3>Üsküdar Ortaokulu</h3><a href="/u">Detay</a></div><article class="card"><a href="/m">Maltepe Ortaokulu</a></article>`,
			want:     []string{"Üsküdar Ortaokulu", "Maltepe Ortaokulu"},
		},
		{
			name:     "tables",
			strategy: TableStrategy(),
			html:     `<table><tr><td><a href="/a">Bakırköy Ortaokulu</a></td><td>plain</td></tr></table>`,
			want:     []string{"Bakırköy Ortaokulu"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.strategy(mustDoc(t, tt.html)))
		})
	}
}

func TestScraper_ExtractNames_FirstLayerWins(t *testing.T) {
	s := newTestScraper(&stubFetcher{})
	html := `
<ul><li class="school"><a href="/okul/a">Fatih Sultan Mehmet Ortaokulu</a></li></ul>
<table><tr><td><a href="/t">Tablodaki Ortaokul</a></td></tr></table>`

	assert.Equal(t, []string{"Fatih Sultan Mehmet Ortaokulu"}, s.ExtractNames(mustDoc(t, html)))
}

func TestScraper_ExtractNames_SkipsLayersWithOnlyNoise(t *testing.T) {
	s := newTestScraper(&stubFetcher{})
	html := `
<ul><li class="item"><a href="/x">Daha Fazla</a></li></ul>
<table><tr><td><a href="/t">Bağcılar Ortaokulu</a></td></tr></table>`

	assert.Equal(t, []string{"Bağcılar Ortaokulu"}, s.ExtractNames(mustDoc(t, html)))
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		name string
		html string
		want int
	}{
		{"no pagination", `<div>nothing</div>`, 1},
		{"query params", `<ul class="pagination"><li><a href="?f-f=4&page=2">›</a></li><li><a href="/list?page=7">»</a></li></ul>`, 7},
		{"numeric text", `<div class="pagination"><a href="#">1</a><a href="#">12</a><a href="#">Sonraki</a></div>`, 12},
		{"links outside container ignored", `<a href="?page=99">99</a><div class="pagination"><a href="?page=3">3</a></div>`, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TotalPages(mustDoc(t, tt.html), "pagination"))
		})
	}
	assert.Equal(t, 1, TotalPages(nil, "pagination"))
}

func TestScraper_ScrapeAll(t *testing.T) {
	base := "https://listing.example/ortaokul/istanbul?f-f=4"
	page1 := `<div class="pagination"><a href="?f-f=4&page=3">3</a></div>
<ul><li class="school"><a href="/okul/a">Fatih Sultan Mehmet Ortaokulu</a></li>
<li class="school"><a href="/okul/b">Kadıköy Anadolu Ortaokulu</a></li></ul>`
	page2 := `<ul><li class="school"><a href="/okul/b">Kadıköy Anadolu Ortaokulu</a></li>
<li class="school"><a href="/okul/c">Beşiktaş Ortaokulu</a></li></ul>`

	fetcher := &stubFetcher{pages: map[string]string{
		base:             page1,
		base + "&page=2": page2,
		// page 3 missing: its fetch fails and contributes nothing
	}}
	s := newTestScraper(fetcher)

	names, err := s.ScrapeAll(context.Background(), base)
	require.NoError(t, err)

	assert.Equal(t, []string{"Fatih Sultan Mehmet Ortaokulu", "Kadıköy Anadolu Ortaokulu", "Beşiktaş Ortaokulu"}, names)
	// Base page is fetched once and reused as page 1
	assert.ElementsMatch(t, []string{base, base + "&page=2", base + "&page=3"}, fetcher.calls)
}

func TestScraper_ScrapeAll_IdenticalPagesYieldNoDuplicates(t *testing.T) {
	base := "https://listing.example/list"
	html := `<div class="pagination"><a href="?page=2">2</a></div>
<ul><li class="okul"><a href="/okul/a">Fatih Sultan Mehmet Ortaokulu</a></li></ul>`

	s := newTestScraper(&stubFetcher{pages: map[string]string{base: html, base + "?page=2": html}})

	names, err := s.ScrapeAll(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fatih Sultan Mehmet Ortaokulu"}, names)
}

func TestScraper_ScrapeAll_BaseFailureAssumesSinglePage(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{}}
	s := newTestScraper(fetcher)

	names, err := s.ScrapeAll(context.Background(), "https://listing.example/list")
	require.NoError(t, err)
	assert.Empty(t, names)
	// One failed base fetch, then one retry of page 1 inside the batch
	assert.Len(t, fetcher.calls, 2)
}

func TestScraper_ScrapeAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestScraper(&errFetcher{err: context.Canceled})
	_, err := s.ScrapeAll(ctx, "https://listing.example/list")
	assert.True(t, errors.Is(err, context.Canceled))
}

type errFetcher struct{ err error }

func (f *errFetcher) Fetch(ctx context.Context, url string) (*interfaces.Page, error) {
	return nil, f.err
}

func (f *errFetcher) Close() error { return nil }
