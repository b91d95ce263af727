package httpclient

import (
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// NewSessionClient creates an HTTP client that keeps cookies across requests
// like a browser session. Sites that set a consent or challenge cookie on the
// first response expect it back on the following pages.
func NewSessionClient(timeout time.Duration) *http.Client {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New never fails with a non-nil options value
		return NewDefaultHTTPClient(timeout)
	}

	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
	}
}
