package targets

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/session"
)

const instamartImagePrefix = "https://instamart-media-assets.swiggy.com/swiggy/image/upload/fl_lossy,f_auto,q_auto,h_600/"

// instamartCookies is the canned device identity the web client carries;
// the WAF token minted by the browser flow is merged on top.
var instamartCookies = map[string]string{
	"__SW":               "ZG54_yum0Yur8QOrIKhpO6pezekMBgLi",
	"_device_id":         "a623544e-9d5b-8e93-51c9-91b1c418c3a8",
	"deviceId":           "s%3Aa623544e-9d5b-8e93-51c9-91b1c418c3a8.53UqHyVquomHYBHMOTGszfqRymDEl1qs5bFisYdf%2F2s",
	"versionCode":        "1200",
	"platform":           "web",
	"subplatform":        "dweb",
	"statusBarHeight":    "0",
	"bottomOffset":       "0",
	"genieTrackOn":       "false",
	"ally-on":            "false",
	"isNative":           "false",
	"strId":              "",
	"openIMHP":           "false",
	"LocSrc":             "s%3AswgyUL.Dzm1rLPIhJmB3Tl2Xs6141hVZS0ofGP7LGmLXgQOA7Y",
	"webBottomBarHeight": "0",
	"_is_logged_in":      "1",
	"fontsLoaded":        "1",
	"dadl":               "true",
}

var instamartHeaders = map[string]string{
	"accept":          "*/*",
	"accept-language": "en-GB,en;q=0.5",
	"content-type":    "application/json",
	"matcher":         "addce8ecfeeacfb987ad7e7",
	"origin":          "https://www.swiggy.com",
	"x-build-version": "2.297.0",
}

// Instamart searches the Swiggy Instamart v2 API. Pagination is a numeric
// offset handed back in the response; a zero offset means no more results.
// Requests are gated behind an AWS WAF token that only a real browser visit
// can mint.
func Instamart(deps Deps) Target {
	profile := &pipeline.Profile{
		Platform: "instamart",
		Build:    buildInstamartRequest,
		Framing:  pipeline.JSONPathFraming{Path: "data.cards[].card.card.gridElements.infoWithStyle.items[]"},
		Fields: pipeline.Mapping{
			VariantPath: "variations[]",
			Fields: map[string][]pipeline.Accessor{
				"product_id":           {{RootPath: "productId"}},
				"variant_id":           {{Path: "skuId"}},
				"name":                 {{Path: "displayName"}, {RootPath: "displayName"}},
				"brand":                {{Path: "brandName"}, {RootPath: "brand"}},
				"mrp":                  {{Path: "price.mrp.units"}},
				"price":                {{Path: "price.offerPrice.units"}},
				"quantity":             {{Path: "quantityDescription"}},
				"in_stock":             {{Path: "inventory.inStock"}},
				"inventory":            {{Path: "cartAllowedQuantity.allowedQuantity"}},
				"max_allowed_quantity": {{Path: "cartAllowedQuantity.allowedQuantity"}},
				"category":             {{Path: "category"}, {RootPath: "category"}},
				"sub_category":         {{Path: "subCategoryType"}, {RootPath: "subCategoryType"}},
				"organic_rank":         {{RootPath: "analytics.position"}},
				"images": {
					{Path: "imageIds", Prefix: instamartImagePrefix},
					{Path: "medias", Each: "id", Prefix: instamartImagePrefix, Append: true},
				},
			},
		},
		CursorStyle:    pipeline.CursorOffset,
		NextCursorPath: "data.searchResultsOffset",
		ZeroCursorEnds: true,
		SoftError:      &pipeline.Marker{Path: "statusCode", Equals: "ERR_NON_2XX_3XX_RESPONSE"},
		StoreID: func(_ *session.Session, location string) string {
			return hintPart(location, 0)
		},
	}

	provider := &session.BrowserProvider{
		Browser:        deps.Browser,
		PageURL:        "https://www.swiggy.com/instamart",
		TokenCookie:    "aws-waf-token",
		CookieTemplate: instamartCookies,
		HeaderTemplate: instamartHeaders,
		Logger:         deps.Logger,
	}

	return Target{Profile: profile, Provider: provider}
}

func buildInstamartRequest(_ *session.Session, req pipeline.PageRequest) *pipeline.Request {
	store := hintPart(req.Location, 0)
	offset := strconv.Itoa(req.Cursor.Offset)

	return &pipeline.Request{
		Method: http.MethodPost,
		URL:    "https://www.swiggy.com/api/instamart/search/v2",
		Query: map[string]string{
			"offset":                offset,
			"ageConsent":            "false",
			"voiceSearchTrackingId": "",
			"storeId":               store,
			"primaryStoreId":        store,
			"secondaryStoreId":      "",
		},
		Headers: map[string]string{
			"referer": "https://www.swiggy.com/instamart/search?custom_back=true&query=" + url.QueryEscape(req.Query),
		},
		Cookies: map[string]string{
			"lat":                hintPart(req.Location, 1),
			"lng":                hintPart(req.Location, 2),
			"imOrderAttribution": fmt.Sprintf(`{"entryId":%q,"entryName":"instamartOpenSearch"}`, req.Query),
		},
		JSONBody: map[string]any{
			"facets":                []any{},
			"sortAttribute":         "",
			"query":                 req.Query,
			"search_results_offset": req.Cursor.Offset,
			"page_type":             "INSTAMART_SEARCH_PAGE",
			"is_pre_search_tag":     false,
		},
	}
}
