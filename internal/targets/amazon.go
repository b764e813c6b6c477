package targets

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/session"
)

const (
	amazonBaseURL      = "https://www.amazon.in"
	amazonDefaultStore = "nowstore"
)

// amazonFallbackCookies is the canned session used when the location
// bootstrap fails. These tolerate search but pin no delivery location.
var amazonFallbackCookies = map[string]string{
	"session-id": "525-9439529-3198566",
	"i18n-prefs": "INR",
	"lc-acbin":   "en_IN",
	"ubid-acbin": "259-7891041-6972353",
}

var amazonHeaders = map[string]string{
	"accept":           "text/html,*/*",
	"accept-language":  "en-GB,en;q=0.9",
	"content-type":     "application/json",
	"origin":           amazonBaseURL,
	"referer":          amazonBaseURL + "/",
	"x-requested-with": "XMLHttpRequest",
}

// Amazon searches via the s/query endpoint, which answers with multiple
// &&&-delimited JSON chunks. Product rows ride inside dispatch chunks as
// HTML fragments, so the field mapping leans on CSS selectors and regexes
// instead of dot paths. The session bootstrap pins a delivery pincode
// through the glow address-change flow; canned cookies are an accepted
// degraded mode.
func Amazon(deps Deps) Target {
	profile := &pipeline.Profile{
		Platform: "amazon",
		Build:    buildAmazonRequest,
		Framing:  pipeline.ChunkedFraming{Delimiter: "&&&"},
		Fields: pipeline.Mapping{
			Guards: []pipeline.Marker{
				{Path: "0", Equals: "dispatch"},
				{Path: "1", Equals: "data-main-slot*"},
			},
			HTMLPath: "2.html",
			Fields: map[string][]pipeline.Accessor{
				"product_id": {{Regex: `data-asin="([^"]+)"`}},
				"variant_id": {{Regex: `data-asin="([^"]+)"`}},
				"name": {
					{Regex: `<h2[^>]*aria-label="([^"]+)"`},
					{CSS: "h2 span"},
				},
				"price": {
					{CSS: "span.a-price span.a-offscreen"},
					{Regex: `<span class="a-price-whole">([^<]+)</span>`},
				},
				"mrp": {
					{CSS: "span.a-price span.a-offscreen"},
					{Regex: `<span class="a-price-whole">([^<]+)</span>`},
				},
				"rating":       {{Regex: `aria-label="([0-9.]+) out of 5 stars"`}},
				"brand":        {{Regex: `<span class="[^"]*a-size-base-plus[^"]*">([^<]+)</span>`}},
				"images":       {{CSS: "img.s-image", Attr: "src"}},
				"in_stock":     {{NotContains: []string{"Currently unavailable", "Out of stock"}}},
				"organic_rank": {{Const: "0"}},
			},
		},
		CursorStyle:         pipeline.CursorPages,
		FirstPage:           1,
		AllowPartialSession: true,
		FallbackSession: func() *session.Session {
			return &session.Session{
				Cookies:  mergeMaps(amazonFallbackCookies, nil),
				Headers:  mergeMaps(amazonHeaders, nil),
				MintedAt: time.Now(),
			}
		},
	}

	provider := &amazonProvider{
		client: deps.httpClient(),
		logger: deps.Logger.With("component", "amazon_session"),
	}

	return Target{Profile: profile, Provider: provider}
}

func buildAmazonRequest(_ *session.Session, req pipeline.PageRequest) *pipeline.Request {
	store := hintPart(req.Location, 1)
	if store == "" {
		store = amazonDefaultStore
	}

	return &pipeline.Request{
		Method: http.MethodPost,
		URL:    amazonBaseURL + "/s/query",
		Query: map[string]string{
			"k":    req.Query,
			"i":    store,
			"page": strconv.Itoa(req.Cursor.Page),
			"qid":  strconv.FormatInt(time.Now().Unix(), 10),
			"ref":  "glow_cls",
		},
		JSONBody: map[string]any{"customer-action": "query"},
	}
}

// amazonProvider mints a session by replaying the canned cookies and then
// pinning the delivery location via the glow address-change endpoint. The
// response cookies carry the location binding.
type amazonProvider struct {
	client *resty.Client
	logger *slog.Logger
}

func (p *amazonProvider) Acquire(ctx context.Context, locationHint string) (*session.Session, error) {
	pincode := hintPart(locationHint, 0)
	store := hintPart(locationHint, 1)
	if store == "" {
		store = amazonDefaultStore
	}

	sess := &session.Session{
		Cookies:  mergeMaps(amazonFallbackCookies, nil),
		Headers:  mergeMaps(amazonHeaders, nil),
		MintedAt: time.Now(),
	}
	if pincode == "" {
		return sess, nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeaders(amazonHeaders).
		SetCookies(cookieSlice(sess.Cookies)).
		SetQueryParam("actionSource", "glow").
		SetBody(map[string]any{
			"locationType": "LOCATION_INPUT",
			"zipCode":      pincode,
			"storeContext": store,
			"deviceType":   "web",
			"pageType":     "Search",
			"actionSource": "glow",
		}).
		SetResult(map[string]any{}).
		Post(amazonBaseURL + "/portal-migration/hz/glow/address-change")
	if err != nil {
		return nil, fmt.Errorf("%w: address change: %v", session.ErrCredentialAcquisition, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: address change status %d", session.ErrCredentialAcquisition, resp.StatusCode())
	}

	result, _ := resp.Result().(*map[string]any)
	if result == nil || !truthy((*result)["isAddressUpdated"]) || !truthy((*result)["successful"]) {
		return nil, fmt.Errorf("%w: address update rejected for pincode %s", session.ErrCredentialAcquisition, pincode)
	}

	for _, c := range resp.Cookies() {
		sess.Cookies[c.Name] = c.Value
	}

	p.logger.Info("delivery location pinned", "pincode", pincode, "store", store)
	return sess, nil
}

func (p *amazonProvider) Refresh(ctx context.Context, _ *session.Session, locationHint string) (*session.Session, error) {
	return p.Acquire(ctx, locationHint)
}

func cookieSlice(m map[string]string) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(m))
	for k, v := range m {
		out = append(out, &http.Cookie{Name: k, Value: v})
	}
	return out
}

// truthy reads the loosely-typed success flags these APIs return: bools,
// numbers or strings depending on the endpoint's mood.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && t != "false" && t != "0"
	default:
		return false
	}
}
