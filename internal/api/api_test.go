package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/api"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/config"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/scraper"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/session"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/targets"
)

// scriptedFetcher serves canned page bodies instead of hitting the network.
type scriptedFetcher struct {
	bodies []string
	status int
	calls  int
}

func (f *scriptedFetcher) FetchPage(ctx context.Context, sess *session.Session, req *pipeline.Request) ([]byte, int, error) {
	idx := f.calls
	if idx >= len(f.bodies) {
		idx = len(f.bodies) - 1
	}
	f.calls++
	status := f.status
	if status == 0 {
		status = 200
	}
	return []byte(f.bodies[idx]), status, nil
}

type failingProvider struct{}

func (failingProvider) Acquire(ctx context.Context, locationHint string) (*session.Session, error) {
	return nil, fmt.Errorf("%w: waf challenge not solved", session.ErrCredentialAcquisition)
}

func (p failingProvider) Refresh(ctx context.Context, current *session.Session, locationHint string) (*session.Session, error) {
	return p.Acquire(ctx, locationHint)
}

func demoProfile() *pipeline.Profile {
	return &pipeline.Profile{
		Platform: "demomart",
		Build: func(_ *session.Session, req pipeline.PageRequest) *pipeline.Request {
			return &pipeline.Request{
				Method: "GET",
				URL:    "https://demomart.example/search",
				Query:  map[string]string{"q": req.Query},
			}
		},
		Framing: pipeline.JSONPathFraming{Path: "items[]"},
		Fields: pipeline.Mapping{
			Fields: map[string][]pipeline.Accessor{
				"product_id": {{Path: "id"}},
				"name":       {{Path: "name"}},
				"price":      {{Path: "price"}},
			},
		},
		CursorStyle:  pipeline.CursorPages,
		FirstPage:    1,
		MoreFlagPath: "hasMore",
	}
}

func newTestRouter(t *testing.T, fetcher pipeline.Fetcher, provider session.Provider) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if provider == nil {
		provider = &session.StaticProvider{}
	}
	reg := map[string]targets.Target{
		"demomart": {Profile: demoProfile(), Provider: provider},
	}

	cache := session.NewCache(8, time.Minute, logger)
	svc := scraper.NewService(reg, cache, fetcher, config.ScraperConfig{
		MaxConcurrentRuns: 2,
		MaxPagesDefault:   5,
		MaxPagesCap:       10,
	}, nil, logger)

	h := api.NewHandlers(svc, nil, logger)
	return api.NewRouter(h, nil, nil, time.Minute)
}

func doRequest(t *testing.T, router http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSearchReturnsProducts(t *testing.T) {
	fetcher := &scriptedFetcher{bodies: []string{
		`{"hasMore":false,"items":[
			{"id":"p1","name":"Milk 1L","price":52},
			{"id":"p2","name":"Milk 500ml","price":28}
		]}`,
	}}
	router := newTestRouter(t, fetcher, nil)

	rec := doRequest(t, router, "GET", "/api/v1/demomart/search?query=milk", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "demomart", resp.Platform)
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Products, 2)
	assert.Equal(t, "exhausted", resp.Reason)
	assert.Equal(t, 1, resp.Pages)
	assert.Equal(t, "Milk 1L", resp.Products[0].Name)
}

func TestSearchRequiresQuery(t *testing.T) {
	router := newTestRouter(t, &scriptedFetcher{bodies: []string{`{}`}}, nil)

	rec := doRequest(t, router, "GET", "/api/v1/demomart/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchUnknownPlatform(t *testing.T) {
	router := newTestRouter(t, &scriptedFetcher{bodies: []string{`{}`}}, nil)

	rec := doRequest(t, router, "GET", "/api/v1/nosuchmart/search?query=milk", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchCredentialFailureIsBadGateway(t *testing.T) {
	router := newTestRouter(t, &scriptedFetcher{bodies: []string{`{}`}}, failingProvider{})

	rec := doRequest(t, router, "GET", "/api/v1/demomart/search?query=milk", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSearchBlockedRunWithNoProductsIsBadGateway(t *testing.T) {
	// Every page comes back 403, so the run fails after one refresh with
	// nothing collected.
	fetcher := &scriptedFetcher{bodies: []string{`denied`}, status: 403}
	router := newTestRouter(t, fetcher, nil)

	rec := doRequest(t, router, "GET", "/api/v1/demomart/search?query=milk", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp api.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Reason)
	assert.Zero(t, resp.Count)
	assert.NotEmpty(t, resp.Error)
}

func TestPlatformsEndpoint(t *testing.T) {
	router := newTestRouter(t, &scriptedFetcher{bodies: []string{`{}`}}, nil)

	rec := doRequest(t, router, "GET", "/api/v1/platforms", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Platforms []string `json:"platforms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"demomart"}, resp.Platforms)
}

func TestCreateJobValidation(t *testing.T) {
	router := newTestRouter(t, &scriptedFetcher{bodies: []string{`{}`}}, nil)

	rec := doRequest(t, router, "POST", "/api/v1/jobs", `{"platform":"demomart"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, "POST", "/api/v1/jobs", `{"search_query":"milk"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, "POST", "/api/v1/jobs", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointServesPipelineCounters(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := pipeline.NewMetrics()
	metrics.IncPages("demomart")

	h := api.NewHandlers(nil, nil, logger)
	router := api.NewRouter(h, nil, metrics.Registry, time.Minute)

	rec := doRequest(t, router, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	// The scraper counters live on the pipeline's own registry, not the
	// default one; the endpoint must expose that registry.
	assert.Contains(t, rec.Body.String(), "scraper_pages_fetched_total")
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &scriptedFetcher{bodies: []string{`{}`}}, nil)

	rec := doRequest(t, router, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}
