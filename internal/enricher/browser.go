package enricher

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"sjsage522/listingworker/helpers"
	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/pkg/errors"

	"github.com/chromedp/chromedp"
)

// BrowserOptions configures the headless browser
type BrowserOptions struct {
	// ExecPath overrides binary detection.
	ExecPath string
	// ChallengeWait is how long a loaded page is given to render and clear
	// anti-bot challenges before the DOM is read.
	ChallengeWait time.Duration
	PageTimeout   time.Duration
	UserAgent     string
}

// BrowserFetcher renders detail pages in one shared headless browser. Each
// fetch opens its own tab; navigation is serialized across tabs.
type BrowserFetcher struct {
	opts BrowserOptions
	log  *logger.Logger

	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc

	navMu     sync.Mutex
	closeOnce sync.Once
}

// NewBrowserFetcher launches the browser. Failure here is a fatal setup error.
func NewBrowserFetcher(opts BrowserOptions) (*BrowserFetcher, error) {
	if opts.ChallengeWait < 0 {
		opts.ChallengeWait = 0
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = helpers.DesktopUserAgent
	}
	log := logger.ForEnricher().WithField("strategy", "browser")

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1280, 800),
		chromedp.UserAgent(opts.UserAgent),
	)
	if bin := FindChrome(opts.ExecPath); bin != "" {
		log.Info().Str("binary", bin).Msg("Using browser binary")
		allocOpts = append(allocOpts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// an empty Run starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, errors.NewBrowser("failed to launch headless browser", err)
	}

	return &BrowserFetcher{
		opts:          opts,
		log:           log,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}, nil
}

// Name identifies the strategy in logs
func (b *BrowserFetcher) Name() string { return "browser" }

// FetchHTML loads url in a fresh tab, waits for the challenge window, and
// returns the rendered document.
func (b *BrowserFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.opts.PageTimeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	b.navMu.Lock()
	err := chromedp.Run(tabCtx, chromedp.Navigate(url))
	b.navMu.Unlock()
	if err != nil {
		return "", errors.NewBrowser("navigate "+url, err)
	}

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Sleep(b.opts.ChallengeWait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.NewBrowser("read page "+url, err)
	}
	if !strings.Contains(html, "<html") {
		return "", errors.NewBrowser("empty or invalid HTML response for "+url, nil)
	}
	return html, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (b *BrowserFetcher) Close() error {
	b.closeOnce.Do(func() {
		b.cancelBrowser()
		b.cancelAlloc()
		b.log.Info().Msg("Browser closed")
	})
	return nil
}

// FindChrome locates a Chrome or Chromium binary. A configured path wins;
// an empty result lets chromedp use its own lookup.
func FindChrome(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
