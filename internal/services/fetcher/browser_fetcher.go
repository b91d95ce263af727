package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
)

// BrowserFetcher renders pages in headless Chrome to get past JavaScript bot checks.
// One browser process serves the whole stage; every attempt opens an isolated
// browser context so cookies and storage never carry over between attempts.
type BrowserFetcher struct {
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	config  common.BrowserConfig
	profile RequestProfile
	policy  *RetryPolicy
	sleep   common.SleepFunc
	draw    common.DurationFunc
	logger  arbor.ILogger
}

// NewBrowserFetcher launches Chrome and verifies it responds
func NewBrowserFetcher(config common.FetcherConfig, logger arbor.ILogger) (*BrowserFetcher, error) {
	browser := config.Browser
	if browser.NavigationTimeout <= 0 {
		browser.NavigationTimeout = 60 * time.Second
	}
	profile := RequestProfile{UserAgents: config.UserAgents, AcceptLanguage: config.AcceptLanguage}

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", browser.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", browser.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", browser.Locale),
		chromedp.WindowSize(int(browser.ViewportWidth), int(browser.ViewportHeight)),
		chromedp.UserAgent(profile.UserAgent()),
	)
	if browser.ExecPath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(browser.ExecPath))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, browser.NavigationTimeout)
	defer testCancel()

	// Run startup test
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	logger.Debug().
		Bool("headless", browser.Headless).
		Str("locale", browser.Locale).
		Str("timezone", browser.Timezone).
		Msg("Browser fetcher started")

	return &BrowserFetcher{
		allocatorCtx:    allocatorCtx,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		config:          browser,
		profile:         profile,
		policy:          NewRetryPolicy(config),
		sleep:           common.Sleep,
		draw:            common.RandomDuration,
		logger:          logger,
	}, nil
}

// SetPolicy replaces the retry policy, for stages with their own markers or budget
func (f *BrowserFetcher) SetPolicy(policy *RetryPolicy) *BrowserFetcher {
	f.policy = policy
	return f
}

// Fetch implements interfaces.Fetcher
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*interfaces.Page, error) {
	finalURL := url
	rendered, err := f.policy.Execute(ctx, f.logger, url, func(ctx context.Context, attempt int) (int, string, error) {
		statusCode, html, location, err := f.render(ctx, url)
		if location != "" {
			finalURL = location
		}
		return statusCode, html, err
	})
	if err != nil {
		return nil, err
	}
	rendered.URL = finalURL
	return rendered, nil
}

func (f *BrowserFetcher) render(ctx context.Context, url string) (statusCode int, html string, location string, err error) {
	tabCtx, tabCancel := chromedp.NewContext(f.browserCtx, chromedp.WithNewBrowserContext())
	defer tabCancel()

	navCtx, navCancel := context.WithTimeout(tabCtx, f.config.NavigationTimeout)
	defer navCancel()

	// Tie the tab to the caller's context as well as the navigation timeout
	stop := context.AfterFunc(ctx, navCancel)
	defer stop()

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(navCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	if err := chromedp.Run(navCtx, f.prepareTab()); err != nil {
		return 0, "", "", fmt.Errorf("failed to prepare browser tab: %w", err)
	}
	// Drop lifecycle events of the initial blank page
	select {
	case <-idle:
	default:
	}

	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(url))
	if err != nil {
		return 0, "", "", fmt.Errorf("navigation failed: %w", err)
	}
	statusCode = http.StatusOK
	if resp != nil {
		statusCode = int(resp.Status)
	}

	f.waitForNetworkIdle(navCtx, idle)

	// Give deferred scripts time to finish rewriting the DOM
	if err := f.sleep(navCtx, f.draw(f.config.SettleMin, f.config.SettleMax)); err != nil {
		return statusCode, "", "", err
	}

	if err := chromedp.Run(navCtx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return statusCode, "", "", fmt.Errorf("failed to read rendered html: %w", err)
	}

	return statusCode, html, location, nil
}

func (f *BrowserFetcher) prepareTab() chromedp.Tasks {
	tasks := chromedp.Tasks{
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		chromedp.EmulateViewport(f.config.ViewportWidth, f.config.ViewportHeight),
	}
	if f.profile.AcceptLanguage != "" {
		tasks = append(tasks,
			network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": f.profile.AcceptLanguage}),
			emulation.SetUserAgentOverride(f.profile.UserAgent()).WithAcceptLanguage(f.profile.AcceptLanguage),
		)
	}
	if f.config.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(f.config.Locale))
	}
	if f.config.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(f.config.Timezone))
	}
	return tasks
}

// waitForNetworkIdle blocks until the networkIdle lifecycle event or the idle timeout.
// A page that never goes idle (long polling, analytics beacons) is read anyway.
func (f *BrowserFetcher) waitForNetworkIdle(ctx context.Context, idle <-chan struct{}) {
	timeout := f.config.NetworkIdleTimeout
	if timeout <= 0 {
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-idle:
	case <-timer.C:
		f.logger.Debug().Dur("timeout", timeout).Msg("Network idle not reached, reading page anyway")
	case <-ctx.Done():
	}
}

// Close shuts down the browser process
func (f *BrowserFetcher) Close() error {
	if f.browserCancel != nil {
		f.browserCancel()
	}
	if f.allocatorCancel != nil {
		f.allocatorCancel()
	}
	return nil
}
