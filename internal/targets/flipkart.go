package targets

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/session"
)

const flipkartAPIBase = "https://1.rome.api.flipkart.com"

var flipkartCookies = map[string]string{
	"T":        "TI176250251006400090422924463936480118078483415426979424293560624030",
	"K-ACTION": "null",
	"vh":       "724",
	"vw":       "1440",
	"dpr":      "2",
	"rt":       "null",
}

var flipkartHeaders = map[string]string{
	"Accept":       "*/*",
	"Content-Type": "application/json",
	"Origin":       "https://www.flipkart.com",
	"Referer":      "https://www.flipkart.com/",
	"X-User-Agent": "Mozilla/5.0 FKUA/website/42/website/Desktop",
}

// Flipkart searches the grocery marketplace through the page/fetch API.
// Pagination is a 1-based page number with an explicit hasMorePages flag.
// The session bootstrap registers the delivery pincode against the
// serviceability endpoint, which hands back a session cookie.
func Flipkart(deps Deps) Target {
	profile := &pipeline.Profile{
		Platform: "flipkart",
		Build:    buildFlipkartRequest,
		Framing:  pipeline.JSONPathFraming{Path: "RESPONSE.slots[].widget.data.products[]"},
		Fields: pipeline.Mapping{
			Guards:    []pipeline.Marker{{Path: "productInfo.value.id", Equals: "*"}},
			Transform: flipkartTransform,
			Fields: map[string][]pipeline.Accessor{
				"product_id": {{Path: "productInfo.value.id"}},
				"variant_id": {
					{Path: "productInfo.value.itemId"},
					{Path: "productInfo.value.listingId"},
				},
				"name": {
					{Path: "productInfo.value.titles.newTitle"},
					{Path: "productInfo.value.titles.title"},
				},
				"brand": {
					{Path: "productInfo.value.titles.superTitle"},
					{Path: "productInfo.value.productBrand"},
				},
				"quantity": {{Path: "productInfo.value.titles.subtitle"}},
				"price":    {{Path: "_pricing.price"}},
				"mrp":      {{Path: "_pricing.mrp"}},
				"in_stock": {{Path: "_pricing.inStock"}},
				"images":   {{Path: "_pricing.image"}},
			},
		},
		CursorStyle:         pipeline.CursorPages,
		FirstPage:           1,
		MoreFlagPath:        "RESPONSE.pageData.paginationContextMap.federator.hasMorePages",
		AllowPartialSession: true,
		FallbackSession: func() *session.Session {
			return &session.Session{
				Cookies:  mergeMaps(flipkartCookies, nil),
				Headers:  mergeMaps(flipkartHeaders, nil),
				MintedAt: time.Now(),
			}
		},
	}

	provider := &flipkartProvider{
		client: deps.httpClient(),
		logger: deps.Logger.With("component", "flipkart_session"),
	}

	return Target{Profile: profile, Provider: provider}
}

func buildFlipkartRequest(_ *session.Session, req pipeline.PageRequest) *pipeline.Request {
	pageURI := "/search?q=" + url.QueryEscape(req.Query) + "&as=on&as-show=on&marketplace=GROCERY"
	if req.Cursor.Page > 1 {
		pageURI += "&page=" + strconv.Itoa(req.Cursor.Page)
	}

	return &pipeline.Request{
		Method: http.MethodPost,
		URL:    flipkartAPIBase + "/api/4/page/fetch",
		JSONBody: map[string]any{
			"pageUri": pageURI,
			"pageContext": map[string]any{
				"fetchSeoData":   req.Cursor.Page == 1,
				"paginatedFetch": true,
				"pageNumber":     req.Cursor.Page,
			},
			"requestContext": map[string]any{
				"type": "BROWSE_PAGE",
			},
		},
	}
}

// flipkartTransform digests the parts of a product record that dot paths
// cannot reach: the typed price list and the templated image URL.
func flipkartTransform(variant any, _ pipeline.RecordMeta) any {
	record, ok := variant.(map[string]any)
	if !ok {
		return nil
	}
	value, _ := lookupMap(record, "productInfo", "value")
	if value == nil {
		return nil
	}

	computed := map[string]any{}

	pricing, _ := value["pricing"].(map[string]any)
	if pricing != nil {
		var mrp, selling float64
		if prices, ok := pricing["prices"].([]any); ok {
			for _, pv := range prices {
				price, ok := pv.(map[string]any)
				if !ok {
					continue
				}
				val, _ := price["value"].(float64)
				switch price["priceType"] {
				case "MRP":
					mrp = val
				case "FSP":
					selling = val
				}
			}
		}
		if selling == 0 {
			if final, ok := lookupMap(pricing, "finalPrice"); ok {
				selling, _ = final["value"].(float64)
			}
		}
		if mrp > 0 {
			computed["mrp"] = mrp
		}
		computed["price"] = selling
	}

	state := ""
	if availability, ok := lookupMap(value, "availability"); ok {
		state, _ = availability["displayState"].(string)
	}
	lowered := strings.ToLower(state)
	computed["inStock"] = lowered != "out_of_stock" && lowered != "unavailable"

	if media, ok := lookupMap(value, "media"); ok {
		if images, ok := media["images"].([]any); ok && len(images) > 0 {
			if img, ok := images[0].(map[string]any); ok {
				if u, ok := img["url"].(string); ok && u != "" {
					u = strings.NewReplacer(
						"{@width}", "312",
						"{@height}", "312",
						"{@quality}", "70",
					).Replace(u)
					computed["image"] = u
				}
			}
		}
	}

	record["_pricing"] = computed
	return record
}

func lookupMap(m map[string]any, keys ...string) (map[string]any, bool) {
	current := m
	for _, k := range keys {
		next, ok := current[k].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// flipkartProvider registers the delivery pincode with the serviceability
// endpoint and folds the returned session cookies into the session.
type flipkartProvider struct {
	client *resty.Client
	logger *slog.Logger
}

func (p *flipkartProvider) Acquire(ctx context.Context, locationHint string) (*session.Session, error) {
	pincode := hintPart(locationHint, 0)

	sess := &session.Session{
		Cookies:  mergeMaps(flipkartCookies, nil),
		Headers:  mergeMaps(flipkartHeaders, nil),
		MintedAt: time.Now(),
	}
	if pincode == "" {
		return sess, nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeaders(flipkartHeaders).
		SetCookies(cookieSlice(sess.Cookies)).
		SetBody(map[string]any{
			"locationContext":    map[string]any{"pincode": pincode},
			"marketplaceContext": map[string]any{"marketplace": "GROCERY"},
		}).
		SetResult(map[string]any{}).
		Post(flipkartAPIBase + "/api/3/marketplace/serviceability")
	if err != nil {
		return nil, fmt.Errorf("%w: serviceability: %v", session.ErrCredentialAcquisition, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: serviceability status %d", session.ErrCredentialAcquisition, resp.StatusCode())
	}

	result, _ := resp.Result().(*map[string]any)
	if result == nil {
		return nil, fmt.Errorf("%w: empty serviceability response", session.ErrCredentialAcquisition)
	}

	response, _ := (*result)["RESPONSE"].(map[string]any)
	if response == nil || !truthy(response["serviceability"]) {
		return nil, fmt.Errorf("%w: grocery delivery not available for pincode %s", session.ErrCredentialAcquisition, pincode)
	}

	if sessionData, ok := (*result)["SESSION"].(map[string]any); ok {
		if sn, ok := sessionData["sn"].(string); ok && sn != "" {
			sess.Cookies["SN"] = sn
		}
	}
	for _, c := range resp.Cookies() {
		sess.Cookies[c.Name] = c.Value
	}

	p.logger.Info("delivery location registered", "pincode", pincode)
	return sess, nil
}

func (p *flipkartProvider) Refresh(ctx context.Context, _ *session.Session, locationHint string) (*session.Session, error) {
	return p.Acquire(ctx, locationHint)
}
