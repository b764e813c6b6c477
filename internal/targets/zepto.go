package targets

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/session"
)

const (
	zeptoSearchURL  = "https://api.zepto.com/api/v3/search"
	zeptoSearchPath = "/api/v3/search"

	zeptoXSRFToken  = "oP3uwJjRw9VSIjT67Zoy7:iuS8QzNseZdvyeSZOPMOpVseoBI.U20MDun9LneIiqw4252G9ST/WGLkcVsd31SJpRH9TTs"
	zeptoCSRFSecret = "aSF-wnTr9qs"

	zeptoDefaultETA = "14"
)

var zeptoCompatibleComponents = strings.Join([]string{
	"CONVENIENCE_FEE", "RAIN_FEE", "EXTERNAL_COUPONS", "STANDSTILL", "BUNDLE",
	"MULTI_SELLER_ENABLED", "PIP_V1", "ROLLUPS", "SCHEDULED_DELIVERY",
	"SAMPLING_ENABLED", "HOMEPAGE_V2", "NEW_ETA_BANNER",
	"VERTICAL_FEED_PRODUCT_GRID", "AUTOSUGGESTION_PAGE_ENABLED",
	"AUTOSUGGESTION_PIP", "BOTTOM_NAV_FULL_ICON", "MARKETPLACE_CATEGORY_GRID",
	"NO_PLATFORM_CHECK_ENABLED_V2", "SUPER_SAVER:1", "SUPERSTORE_V1",
	"PROMO_CASH:0", "24X7_ENABLED_V1", "TABBED_CAROUSEL_V2", "HP_V4_FEED",
	"WIDGET_BASED_ETA", "PRE_SEARCH", "ITEMISATION_ENABLED", "ZEPTO_PASS",
	"ZEPTO_PASS:5", "BACHAT_FOR_ALL", "NEW_ROLLUPS_ENABLED",
	"RERANKING_QCL_RELATED_PRODUCTS", "PLP_ON_SEARCH", "ROLLUPS_UOM",
	"DYNAMIC_FILTERS", "PHARMA_ENABLED", "SEARCH_FILTERS_V1",
	"QUERY_DESCRIPTION_WIDGET", "NEW_FEE_STRUCTURE", "GIFT_CARD",
	"GIFTING_ENABLED", "WIDGET_RESTRUCTURE", "CART_REDESIGN_ENABLED",
	"SHIPMENT_WIDGETIZATION_ENABLED", "ENABLE_FLOATING_CART_BUTTON",
}, ",") + ","

var zeptoStaticHeaders = map[string]string{
	"accept":                "application/json, text/plain, */*",
	"accept-language":       "en-GB,en;q=0.8",
	"app_sub_platform":      "WEB",
	"app_version":           "13.33.2",
	"appversion":            "13.33.2",
	"auth_revamp_flow":      "v2",
	"compatible_components": zeptoCompatibleComponents,
	"marketplace_type":      "SUPER_SAVER",
	"origin":                "https://www.zepto.com",
	"platform":              "WEB",
	"referer":               "https://www.zepto.com/",
	"tenant":                "ZEPTO",
	"x-csrf-secret":         zeptoCSRFSecret,
	"x-without-bearer":      "true",
	"x-xsrf-token":          zeptoXSRFToken,
}

// Zepto searches the v3 API with a 0-based page-number cursor. Every
// request carries a signature over its own identity and body; the server
// rejects replayed or tampered requests, so the signature is computed fresh
// per page from new uuids. Prices come back in paise.
func Zepto(deps Deps) Target {
	profile := &pipeline.Profile{
		Platform: "zepto",
		Build:    buildZeptoRequest,
		Framing:  pipeline.JSONPathFraming{Path: "layout[].data.resolver.data.items[]"},
		Fields: pipeline.Mapping{
			// Non-grid widgets surface items without a product payload;
			// the guard drops them.
			Guards: []pipeline.Marker{{Path: "productResponse.product.id", Equals: "*"}},
			Fields: map[string][]pipeline.Accessor{
				"product_id":           {{Path: "productResponse.product.id"}},
				"variant_id":           {{Path: "productResponse.productVariant.id"}},
				"store_id":             {{Path: "productResponse.storeId"}},
				"name":                 {{Path: "productResponse.product.name"}},
				"brand":                {{Path: "productResponse.product.brand"}},
				"mrp":                  {{Path: "productResponse.mrp", Div: 100}},
				"price":                {{Path: "productResponse.sellingPrice", Div: 100}},
				"quantity":             {{Path: "productResponse.productVariant.formattedPacksize"}},
				"in_stock":             {{Path: "productResponse.outOfStock", Negate: true}},
				"inventory":            {{Path: "productResponse.availableQuantity"}},
				"max_allowed_quantity": {{Path: "productResponse.productVariant.maxAllowedQuantity"}},
				"category":             {{Path: "productResponse.primaryCategoryName"}},
				"sub_category":         {{Path: "productResponse.primarySubcategoryName"}},
				"organic_rank":         {{Path: "position"}},
				"images": {
					{Path: "productResponse.productVariant.images", Each: "path"},
					{Path: "productResponse.product.images", Each: "path"},
				},
			},
		},
		CursorStyle: pipeline.CursorPages,
		FirstPage:   0,
		StoreID: func(_ *session.Session, location string) string {
			return hintPart(location, 0)
		},
	}

	provider := &session.StaticProvider{
		CookieTemplate: map[string]string{
			"_fbp": "fb.1.1762682659821.637133562767012334",
		},
		HeaderTemplate: zeptoStaticHeaders,
	}

	return Target{Profile: profile, Provider: provider}
}

func buildZeptoRequest(_ *session.Session, req pipeline.PageRequest) *pipeline.Request {
	store := hintPart(req.Location, 0)
	eta := hintPart(req.Location, 1)
	if eta == "" {
		eta = zeptoDefaultETA
	}

	requestID := uuid.NewString()
	deviceID := uuid.NewString()
	sessionID := uuid.NewString()
	intentID := uuid.NewString()

	body := map[string]any{
		"query":         req.Query,
		"pageNumber":    req.Cursor.Page,
		"intentId":      intentID,
		"mode":          "SHOW_ALL_RESULTS",
		"userSessionId": sessionID,
	}
	// The signature covers the exact body bytes sent on the wire.
	raw, _ := json.Marshal(body)

	signature := zeptoSignature("post", zeptoSearchPath, requestID, deviceID, zeptoXSRFToken, string(raw))
	timezone := sha256Hex(signature)

	return &pipeline.Request{
		Method: http.MethodPost,
		URL:    zeptoSearchURL,
		Headers: map[string]string{
			"device_id":         deviceID,
			"deviceid":          deviceID,
			"request-signature": signature,
			"request_id":        requestID,
			"requestid":         requestID,
			"session_id":        sessionID,
			"sessionid":         sessionID,
			"store_etas":        fmt.Sprintf(`{"%s":%s}`, store, eta),
			"store_id":          store,
			"store_ids":         store,
			"storeid":           store,
			"x-timezone":        timezone,
		},
		JSONBody: json.RawMessage(raw),
	}
}

// zeptoSignature hashes the request identity fields in sorted key order,
// pipe-joined, mirroring the web client's signing scheme.
func zeptoSignature(method, urlPath, requestID, deviceID, secret, body string) string {
	fields := map[string]string{
		"method":    strings.ToLower(method),
		"url":       urlPath,
		"requestId": requestID,
		"deviceId":  deviceID,
		"secret":    secret,
	}
	if body != "" && strings.ToLower(method) != "get" {
		fields["body"] = body
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	return sha256Hex(strings.Join(parts, "|"))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
