package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/browser"
)

// BrowserProvider mints a session by driving a headless browser against
// the target's landing page until the WAF/trust cookie appears. The
// orchestration core only sees the Provider interface; whether tokens
// come from a browser or static config is a capability of the target.
type BrowserProvider struct {
	Browser *browser.Browser

	// PageURL is the landing page whose background requests set the token.
	PageURL string
	// TokenCookie is the cookie carrying the freshness-critical token.
	TokenCookie string
	// CookieTemplate/HeaderTemplate are merged under the minted cookies.
	CookieTemplate map[string]string
	HeaderTemplate map[string]string

	Logger *slog.Logger
}

func (p *BrowserProvider) Acquire(ctx context.Context, locationHint string) (*Session, error) {
	if p.Browser == nil {
		return nil, fmt.Errorf("%w: no browser available to mint %s", ErrCredentialAcquisition, p.TokenCookie)
	}
	cookies, token, err := p.Browser.MintTokenCookie(ctx, p.PageURL, p.TokenCookie)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCredentialAcquisition, p.TokenCookie, err)
	}

	s := &Session{
		Cookies:  make(map[string]string, len(p.CookieTemplate)+len(cookies)),
		Headers:  make(map[string]string, len(p.HeaderTemplate)),
		Token:    token,
		MintedAt: time.Now(),
	}
	for k, v := range p.CookieTemplate {
		s.Cookies[k] = v
	}
	for k, v := range cookies {
		s.Cookies[k] = v
	}
	for k, v := range p.HeaderTemplate {
		s.Headers[k] = v
	}

	if p.Logger != nil {
		p.Logger.Info("session acquired", "token_cookie", p.TokenCookie, "cookies", len(s.Cookies))
	}
	return s, nil
}

// Refresh discards the input session entirely and mints a new one; the
// browser flow is the only way to obtain a valid replacement token.
func (p *BrowserProvider) Refresh(ctx context.Context, current *Session, locationHint string) (*Session, error) {
	return p.Acquire(ctx, locationHint)
}
