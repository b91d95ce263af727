package emails

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
	"github.com/ternarybob/schoolreach/internal/models"
	"github.com/ternarybob/schoolreach/internal/services/fetcher"
)

// countingFetcher serves canned pages and records every requested URL
type countingFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
	panic string
}

func (f *countingFetcher) Fetch(ctx context.Context, url string) (*interfaces.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if url == f.panic {
		panic("renderer crashed")
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, interfaces.ErrFetchExhausted
	}
	return &interfaces.Page{URL: url, StatusCode: http.StatusOK, Body: body, Attempts: 1}, nil
}

func (f *countingFetcher) Close() error { return nil }

func newTestExtractor(f interfaces.Fetcher) *Extractor {
	e := NewExtractor(common.NewDefaultConfig().Emails, f, arbor.NewNoOpLogger())
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return e
}

func TestExtractor_AbsentWebsiteSkipsFetch(t *testing.T) {
	f := &countingFetcher{}
	e := newTestExtractor(f)

	results := e.ExtractEmailsBatch(context.Background(), map[string]string{"Alpha Ortaokulu": "", "Beta Ortaokulu": "  "})

	assert.Equal(t, map[string]string{"Alpha Ortaokulu": models.EmailNotFound, "Beta Ortaokulu": models.EmailNotFound}, results)
	assert.Empty(t, f.calls)
}

func TestExtractor_FollowsContactPages(t *testing.T) {
	f := &countingFetcher{pages: map[string]string{
		"https://alpha.k12.tr":          `<a href="/iletisim">İletişim</a><a href="/contact">Contact</a>`,
		"https://alpha.k12.tr/iletisim": `<p>Adres: Fatih, İstanbul</p>`,
		"https://alpha.k12.tr/contact":  `<a href="mailto:alpha@alpha.k12.tr">Mail</a>`,
		"https://beta.k12.tr":           `<footer>beta@beta.k12.tr</footer><a href="/iletisim">İletişim</a>`,
		"https://gamma.k12.tr":          `<p>nothing</p>`,
	}}
	e := newTestExtractor(f)

	results := e.ExtractEmailsBatch(context.Background(), map[string]string{
		"Alpha Ortaokulu": "https://alpha.k12.tr",
		"Beta Ortaokulu":  "https://beta.k12.tr",
		"Gamma Ortaokulu": "https://gamma.k12.tr",
		"Delta Ortaokulu": "https://unreachable.k12.tr",
	})

	assert.Equal(t, map[string]string{
		"Alpha Ortaokulu": "alpha@alpha.k12.tr",
		"Beta Ortaokulu":  "beta@beta.k12.tr",
		"Gamma Ortaokulu": models.EmailNotFound,
		"Delta Ortaokulu": models.EmailNotFound,
	}, results)
	assert.NotContains(t, f.calls, "https://beta.k12.tr/iletisim", "contact pages are only read when the main page has nothing")
}

func TestExtractor_BatchIsolatesPanics(t *testing.T) {
	f := &countingFetcher{
		pages: map[string]string{
			"https://s1.k12.tr": `<footer>s1@s1.k12.tr</footer>`,
			"https://s2.k12.tr": `<footer>s2@s2.k12.tr</footer>`,
			"https://s4.k12.tr": `<footer>s4@s4.k12.tr</footer>`,
			"https://s5.k12.tr": `<footer>s5@s5.k12.tr</footer>`,
		},
		panic: "https://s3.k12.tr",
	}
	e := newTestExtractor(f)

	results := e.ExtractEmailsBatch(context.Background(), map[string]string{
		"S1": "https://s1.k12.tr",
		"S2": "https://s2.k12.tr",
		"S3": "https://s3.k12.tr",
		"S4": "https://s4.k12.tr",
		"S5": "https://s5.k12.tr",
	})

	require.Len(t, results, 5)
	assert.Equal(t, models.EmailNotFound, results["S3"])
	for _, name := range []string{"S1", "S2", "S4", "S5"} {
		assert.NotEqual(t, models.EmailNotFound, results[name])
	}
}

func TestExtractor_WithHTTPFetcher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><a href="/bize-ulasin">Bize Ulaşın</a></body></html>`))
	})
	mux.HandleFunc("/bize-ulasin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><div class="contact-box"><p>İletişim</p><p>mudurluk@okul.k12.tr</p></div></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	config := common.NewDefaultConfig()
	f := fetcher.NewHTTPFetcher(config.Fetcher, arbor.NewNoOpLogger())
	defer f.Close()

	e := newTestExtractor(f)
	email, err := e.ExtractEmail(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "mudurluk@okul.k12.tr", email)
}

func TestExtractor_RecaptchaFormIsNotAChallenge(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><script src="https://www.google.com/recaptcha/api.js" async defer></script></head>
<body><form action="/gonder"><div class="g-recaptcha" data-sitekey="abc"></div></form>
<footer>E-posta: mudurluk@okul.k12.tr</footer></body></html>`))
	}))
	defer server.Close()

	config := common.NewDefaultConfig()
	f := fetcher.New(config.Fetcher, fetcher.Options{MaxAttempts: config.Emails.MaxAttempts}, arbor.NewNoOpLogger())
	defer f.Close()

	e := newTestExtractor(f)
	results := e.ExtractEmailsBatch(context.Background(), map[string]string{"Okul": server.URL})

	assert.Equal(t, "mudurluk@okul.k12.tr", results["Okul"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestExtractor_ResolvesContactLinksAgainstRedirectTarget(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/meb/", http.StatusFound)
	})
	mux.HandleFunc("/meb/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><a href="iletisim">İletişim</a></body></html>`))
	})
	mux.HandleFunc("/meb/iletisim", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><a href="mailto:okul@meb.k12.tr">Yazın</a></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := fetcher.NewHTTPFetcher(common.NewDefaultConfig().Fetcher, arbor.NewNoOpLogger())
	defer f.Close()

	email, err := newTestExtractor(f).ExtractEmail(context.Background(), server.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "okul@meb.k12.tr", email)
}

func TestExtractor_ZeroContactPagesReadsMainPageOnly(t *testing.T) {
	f := &countingFetcher{pages: map[string]string{
		"https://alpha.k12.tr":          `<a href="/iletisim">İletişim</a>`,
		"https://alpha.k12.tr/iletisim": `<footer>alpha@alpha.k12.tr</footer>`,
	}}
	config := common.NewDefaultConfig().Emails
	config.MaxContactPages = 0
	e := NewExtractor(config, f, arbor.NewNoOpLogger())

	email, err := e.ExtractEmail(context.Background(), "https://alpha.k12.tr")
	require.NoError(t, err)
	assert.Empty(t, email)
	assert.Equal(t, []string{"https://alpha.k12.tr"}, f.calls)
}
