package fetcher

import (
	"math/rand/v2"
	"net/http"
)

// defaultAccept mirrors what a desktop browser sends for a top-level navigation
const defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"

// RequestProfile makes requests look like they come from an ordinary desktop browser
type RequestProfile struct {
	UserAgents     []string
	AcceptLanguage string
}

// UserAgent picks one of the configured user agents at random
func (p RequestProfile) UserAgent() string {
	if len(p.UserAgents) == 0 {
		return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	return p.UserAgents[rand.IntN(len(p.UserAgents))]
}

// Apply sets browser-like headers on req
func (p RequestProfile) Apply(req *http.Request) {
	req.Header.Set("User-Agent", p.UserAgent())
	req.Header.Set("Accept", defaultAccept)
	if p.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", p.AcceptLanguage)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}
