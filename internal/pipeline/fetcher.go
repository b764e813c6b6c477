package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/session"
)

// Fetcher issues one HTTP request per page. Pure I/O: it never interprets
// the body; the retry-with-refresh policy belongs to the runner.
type Fetcher interface {
	FetchPage(ctx context.Context, sess *session.Session, req *Request) (body []byte, status int, err error)
}

// HTTPFetcher executes page requests over a shared resty client. Session
// cookies and headers are applied first, then the request's own, so the
// per-page values win on conflict.
type HTTPFetcher struct {
	client *resty.Client
	logger *slog.Logger
}

func NewHTTPFetcher(timeout time.Duration, userAgent string, logger *slog.Logger) *HTTPFetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &HTTPFetcher{
		client: client,
		logger: logger.With("component", "fetcher"),
	}
}

func (f *HTTPFetcher) FetchPage(ctx context.Context, sess *session.Session, req *Request) ([]byte, int, error) {
	r := f.client.R().SetContext(ctx)

	if sess != nil {
		for k, v := range sess.Headers {
			r.SetHeader(k, v)
		}
		for k, v := range sess.Cookies {
			r.SetCookie(&http.Cookie{Name: k, Value: v})
		}
	}
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}
	for k, v := range req.Cookies {
		r.SetCookie(&http.Cookie{Name: k, Value: v})
	}
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if req.JSONBody != nil {
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(req.JSONBody)
	}

	start := time.Now()
	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, 0, fmt.Errorf("execute %s %s: %w", req.Method, req.URL, err)
	}

	f.logger.Debug("page fetched",
		"method", req.Method,
		"url", req.URL,
		"status", resp.StatusCode(),
		"bytes", len(resp.Body()),
		"duration", time.Since(start),
	)

	return resp.Body(), resp.StatusCode(), nil
}
