package session

import (
	"context"
	"errors"
	"time"
)

// ErrCredentialAcquisition means token minting itself failed. The run must
// abort rather than proceed with a stale or partial session.
var ErrCredentialAcquisition = errors.New("credential acquisition failed")

// Session is the opaque trust material a target requires before pagination
// can begin: cookies, headers and optionally one freshness-critical token
// (CSRF, WAF token or signature seed). A session is never patched in place;
// refresh replaces it wholesale.
type Session struct {
	Cookies  map[string]string
	Headers  map[string]string
	Token    string
	MintedAt time.Time
}

// Clone returns an independent copy. Each run owns its session exclusively,
// so a rate-limit response against one run never invalidates another's.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := &Session{
		Cookies:  make(map[string]string, len(s.Cookies)),
		Headers:  make(map[string]string, len(s.Headers)),
		Token:    s.Token,
		MintedAt: s.MintedAt,
	}
	for k, v := range s.Cookies {
		out.Cookies[k] = v
	}
	for k, v := range s.Headers {
		out.Headers[k] = v
	}
	return out
}

// Provider mints and refreshes sessions for one target. Acquire may be
// expensive (a full browser automation flow); callers cache the result and
// call Refresh only on demonstrated failure, never speculatively per page.
type Provider interface {
	Acquire(ctx context.Context, locationHint string) (*Session, error)
	Refresh(ctx context.Context, current *Session, locationHint string) (*Session, error)
}

// StaticProvider serves a fixed cookie/header set. Used for targets that
// tolerate canned sessions; Refresh re-mints the same material.
type StaticProvider struct {
	CookieTemplate map[string]string
	HeaderTemplate map[string]string
}

func (p *StaticProvider) Acquire(ctx context.Context, locationHint string) (*Session, error) {
	s := &Session{
		Cookies:  make(map[string]string, len(p.CookieTemplate)),
		Headers:  make(map[string]string, len(p.HeaderTemplate)),
		MintedAt: time.Now(),
	}
	for k, v := range p.CookieTemplate {
		s.Cookies[k] = v
	}
	for k, v := range p.HeaderTemplate {
		s.Headers[k] = v
	}
	return s, nil
}

func (p *StaticProvider) Refresh(ctx context.Context, current *Session, locationHint string) (*Session, error) {
	return p.Acquire(ctx, locationHint)
}
