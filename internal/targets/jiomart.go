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

const (
	jiomartBaseURL   = "https://www.jiomart.com"
	jiomartSearchURL = jiomartBaseURL + "/trex/search"
	jiomartBranch    = "projects/sr-project-jiomart-jfront-prod/locations/global/catalogs/default_catalog/branches/0"
)

var jiomartCookies = map[string]string{
	"AKA_A2":   "A",
	"_ALGOLIA": "anonymous-cb48a90a-c067-4278-b530-b2dac7ced5f8",
}

var jiomartHeaders = map[string]string{
	"accept":          "*/*",
	"accept-language": "en-GB,en;q=0.8",
	"content-type":    "application/json",
	"origin":          jiomartBaseURL,
}

var jiomartFilter = `attributes.status:ANY("active") AND (attributes.mart_availability:ANY("JIO", "JIO_WA")) AND (attributes.available_regions:ANY("PANINDIABOOKS", "PANINDIACRAFT", "PANINDIADIGITAL", "PANINDIAFASHION", "PANINDIAFURNITURE", "2852", "PANINDIAGROCERIES", "PANINDIAHOMEANDKITCHEN", "PANINDIAHOMEIMPROVEMENT", "PANINDIAJEWEL", "PANINDIALOCALSHOPS", "SK36", "PANINDIASTL", "PANINDIAWELLNESS")) AND ( NOT attributes.vertical_code:ANY("ALCOHOL"))`

// JioMart searches the retail-search frontend. Pagination is an opaque
// pageToken; a missing or empty nextPageToken means exhausted. Pricing
// arrives as pipe-delimited buybox strings carrying one offer per store,
// so extraction selects the offer for the run's store code, resolved from
// the pincode during session bootstrap.
func JioMart(deps Deps) Target {
	profile := &pipeline.Profile{
		Platform: "jiomart",
		Build:    buildJioMartRequest,
		Framing:  pipeline.JSONPathFraming{Path: "results[]"},
		Fields: pipeline.Mapping{
			Transform: jiomartTransform,
			Fields: map[string][]pipeline.Accessor{
				"product_id":   {{Path: "id"}},
				"variant_id":   {{Path: "id"}},
				"store_id":     {{Path: "store"}},
				"name":         {{Path: "title"}},
				"brand":        {{Path: "brand"}},
				"mrp":          {{Path: "mrp"}},
				"price":        {{Path: "price"}},
				"in_stock":     {{Const: "true"}},
				"category":     {{Path: "category"}},
				"sub_category": {{Path: "vertical"}},
				"images":       {{Path: "image"}},
			},
		},
		CursorStyle:    pipeline.CursorToken,
		NextCursorPath: "nextPageToken",
		ZeroCursorEnds: true,
		StoreID: func(sess *session.Session, _ string) string {
			// The provider resolves the pincode to a store code and parks
			// it on the session token.
			return sess.Token
		},
		AllowPartialSession: true,
		FallbackSession: func() *session.Session {
			return &session.Session{
				Cookies:  mergeMaps(jiomartCookies, nil),
				Headers:  mergeMaps(jiomartHeaders, nil),
				MintedAt: time.Now(),
			}
		},
	}

	provider := &jiomartProvider{
		client: deps.httpClient(),
		logger: deps.Logger.With("component", "jiomart_session"),
	}

	return Target{Profile: profile, Provider: provider}
}

func buildJioMartRequest(_ *session.Session, req pipeline.PageRequest) *pipeline.Request {
	body := map[string]any{
		"query":    req.Query,
		"pageSize": 50,
		"facetSpecs": []any{
			map[string]any{"facetKey": map[string]any{"key": "brands"}, "limit": 500, "excludedFilterKeys": []string{"brands"}},
			map[string]any{"facetKey": map[string]any{"key": "categories"}, "limit": 500, "excludedFilterKeys": []string{"categories"}},
			map[string]any{"facetKey": map[string]any{"key": "attributes.category_level_4"}, "limit": 500, "excludedFilterKeys": []string{"attributes.category_level_4"}},
			map[string]any{"facetKey": map[string]any{"key": "attributes.category_level_1"}, "excludedFilterKeys": []string{"attributes.category_level_4"}},
		},
		"variantRollupKeys":  []string{"variantId"},
		"branch":             jiomartBranch,
		"queryExpansionSpec": map[string]any{"condition": "AUTO", "pinUnexpandedResults": true},
		"userInfo":           map[string]any{"userId": nil},
		"spellCorrectionSpec": map[string]any{
			"mode": "AUTO",
		},
		"filter":          jiomartFilter,
		"canonicalFilter": jiomartFilter,
		"visitorId":       "anonymous-6cde6237-dc70-4c89-92b1-35890a28dd17",
	}
	if req.Cursor.Token != "" {
		body["pageToken"] = req.Cursor.Token
	}

	return &pipeline.Request{
		Method: http.MethodPost,
		URL:    jiomartSearchURL,
		Headers: map[string]string{
			"referer": jiomartBaseURL + "/search?q=" + url.QueryEscape(req.Query),
		},
		JSONBody: body,
	}
}

// jiomartTransform flattens one search result into the fields the mapping
// reads: the first variant's identity plus the buybox offer for the run's
// store code. Records priced only for other stores are dropped when a
// store code is known.
func jiomartTransform(variant any, meta pipeline.RecordMeta) any {
	record, ok := variant.(map[string]any)
	if !ok {
		return nil
	}
	product, _ := record["product"].(map[string]any)
	if product == nil {
		return nil
	}
	variants, _ := product["variants"].([]any)
	if len(variants) == 0 {
		return nil
	}
	first, ok := variants[0].(map[string]any)
	if !ok {
		return nil
	}

	out := map[string]any{
		"id":    first["id"],
		"title": first["title"],
	}
	if brands, ok := first["brands"].([]any); ok && len(brands) > 0 {
		out["brand"] = brands[0]
	}
	if categories, ok := product["categories"].([]any); ok && len(categories) > 0 {
		out["category"] = categories[0]
	}
	if images, ok := first["images"].([]any); ok && len(images) > 0 {
		if img, ok := images[0].(map[string]any); ok {
			out["image"] = img["uri"]
		}
	}

	attrs, _ := first["attributes"].(map[string]any)
	if verticals := attrText(attrs, "vertical_code"); len(verticals) > 0 {
		out["vertical"] = verticals[0]
	}

	buybox := attrText(attrs, "buybox_mrp")
	if offer := matchBuyboxOffer(buybox, meta.StoreID); offer != nil {
		out["store"] = offer.store
		if offer.mrp > 0 {
			out["mrp"] = offer.mrp
		}
		out["price"] = offer.sellingPrice
	} else {
		if meta.StoreID != "" && len(buybox) > 0 {
			// Priced, but not at this store.
			return nil
		}
		if prices := attrNumbers(attrs, "avg_selling_price"); len(prices) > 0 {
			out["price"] = prices[0]
		}
	}

	return out
}

type buyboxOffer struct {
	store        string
	mrp          float64
	sellingPrice float64
}

// parseBuyboxOffer splits one pipe-delimited buybox string:
// store|sellerID|sellerName|?|mrp|sellingPrice|?|discountAmt|discountPct|...
func parseBuyboxOffer(text string) *buyboxOffer {
	parts := strings.Split(text, "|")
	if len(parts) < 9 {
		return nil
	}
	mrp, _ := strconv.ParseFloat(parts[4], 64)
	selling, _ := strconv.ParseFloat(parts[5], 64)
	return &buyboxOffer{store: parts[0], mrp: mrp, sellingPrice: selling}
}

func matchBuyboxOffer(texts []string, storeCode string) *buyboxOffer {
	if len(texts) == 0 {
		return nil
	}
	if storeCode == "" {
		return parseBuyboxOffer(texts[0])
	}
	for _, text := range texts {
		if offer := parseBuyboxOffer(text); offer != nil && offer.store == storeCode {
			return offer
		}
	}
	return nil
}

func attrText(attrs map[string]any, key string) []string {
	if attrs == nil {
		return nil
	}
	field, _ := attrs[key].(map[string]any)
	if field == nil {
		return nil
	}
	raw, _ := field["text"].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func attrNumbers(attrs map[string]any, key string) []float64 {
	if attrs == nil {
		return nil
	}
	field, _ := attrs[key].(map[string]any)
	if field == nil {
		return nil
	}
	raw, _ := field["numbers"].([]any)
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}

// jiomartProvider resolves the pincode to the grocery store code serving
// it and builds the location cookies the search API expects.
type jiomartProvider struct {
	client *resty.Client
	logger *slog.Logger
}

func (p *jiomartProvider) Acquire(ctx context.Context, locationHint string) (*session.Session, error) {
	pincode := hintPart(locationHint, 0)

	sess := &session.Session{
		Cookies:  mergeMaps(jiomartCookies, nil),
		Headers:  mergeMaps(jiomartHeaders, nil),
		MintedAt: time.Now(),
	}
	if pincode == "" {
		return sess, nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(map[string]any{}).
		Get(jiomartBaseURL + "/mst/rest/v1/5/pin/" + url.PathEscape(pincode))
	if err != nil {
		return nil, fmt.Errorf("%w: pincode lookup: %v", session.ErrCredentialAcquisition, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: pincode lookup status %d", session.ErrCredentialAcquisition, resp.StatusCode())
	}

	data, _ := resp.Result().(*map[string]any)
	if data == nil {
		return nil, fmt.Errorf("%w: empty pincode response", session.ErrCredentialAcquisition)
	}

	result, _ := (*data)["result"].(map[string]any)
	if result == nil {
		return nil, fmt.Errorf("%w: no location for pincode %s", session.ErrCredentialAcquisition, pincode)
	}

	storeCode := ""
	if codes, ok := result["master_codes"].(map[string]any); ok {
		storeCode, _ = codes["GROCERIES"].(string)
	}
	if storeCode == "" {
		return nil, fmt.Errorf("%w: no grocery store serves pincode %s", session.ErrCredentialAcquisition, pincode)
	}

	city, _ := result["city"].(string)
	stateCode, _ := result["state"].(string)

	sess.Token = storeCode
	sess.Cookies["nms_mgo_pincode"] = pincode
	sess.Cookies["nms_mgo_city"] = city
	sess.Cookies["nms_mgo_state_code"] = stateCode

	p.logger.Info("store resolved", "pincode", pincode, "store_code", storeCode, "city", city)
	return sess, nil
}

func (p *jiomartProvider) Refresh(ctx context.Context, _ *session.Session, locationHint string) (*session.Session, error) {
	return p.Acquire(ctx, locationHint)
}
