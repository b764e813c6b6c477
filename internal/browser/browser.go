package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser wraps a headless Chromium used to mint trust tokens. Token
// acquisition is the scarcest resource in the system, so instances are
// handed out through a semaphore sized well below the page-fetch bound.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	sem     chan struct{}
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	Locale         string
	MaxConcurrent  int
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36",
		ViewportWidth:  1280,
		ViewportHeight: 720,
		AcceptLanguage: "en-GB,en;q=0.9",
		Locale:         "en-IN",
		MaxConcurrent:  5,
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--window-position=0,0",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: b,
		opts:    opts,
		sem:     make(chan struct{}, opts.MaxConcurrent),
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}

// MintTokenCookie navigates to pageURL in a fresh context, nudges the page
// the way a human would, and waits for the named cookie to appear. Returns
// all cookies from the context plus the token value.
func (b *Browser) MintTokenCookie(ctx context.Context, pageURL, cookieName string) (map[string]string, string, error) {
	select {
	case b.sem <- struct{}{}:
		defer func() { <-b.sem }()
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}

	bctx, err := b.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: &b.opts.UserAgent,
		Locale:    &b.opts.Locale,
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: map[string]string{
			"Accept-Language": b.opts.AcceptLanguage,
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create browser context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, "", fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	if _, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return nil, "", fmt.Errorf("failed to navigate: %w", err)
	}

	// A small scroll triggers the background requests that set the token.
	page.Mouse().Wheel(0, 300)

	deadline := time.Now().Add(b.opts.Timeout)
	var token string
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		cookies, err := bctx.Cookies()
		if err != nil {
			return nil, "", fmt.Errorf("failed to read cookies: %w", err)
		}
		for _, c := range cookies {
			if c.Name == cookieName && c.Value != "" {
				token = c.Value
				break
			}
		}
		if token != "" {
			break
		}
		page.WaitForTimeout(300)
	}

	if token == "" {
		return nil, "", fmt.Errorf("cookie %q never appeared on %s", cookieName, pageURL)
	}

	all := make(map[string]string)
	cookies, err := bctx.Cookies()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read cookies: %w", err)
	}
	for _, c := range cookies {
		all[c.Name] = c.Value
	}

	b.logger.Info("minted token cookie", "cookie", cookieName, "url", pageURL)
	return all, token, nil
}
