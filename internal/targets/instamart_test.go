package targets

import (
	"encoding/json"
	"testing"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const instamartItemFixture = `{
	"productId": "JKV9837",
	"displayName": "Toned Milk",
	"brand": "Amul",
	"category": "Dairy",
	"subCategoryType": "Milk",
	"analytics": {"position": 3},
	"variations": [
		{
			"skuId": "SKU-500",
			"displayName": "Toned Milk Pouch",
			"brandName": "Amul",
			"quantityDescription": "500 ml",
			"price": {"mrp": {"units": 30}, "offerPrice": {"units": 28}},
			"inventory": {"inStock": true},
			"cartAllowedQuantity": {"allowedQuantity": 10},
			"imageIds": ["img-a", "img-b", "img-a"],
			"medias": [{"id": "img-b"}, {"id": "img-d"}]
		},
		{
			"skuId": "SKU-1000",
			"quantityDescription": "1 L",
			"price": {"mrp": {"units": 58}, "offerPrice": {"units": 54}},
			"inventory": {"inStock": false},
			"medias": [{"id": "img-c"}]
		}
	]
}`

func TestInstamartExtraction(t *testing.T) {
	target := Instamart(testDeps())

	var item any
	require.NoError(t, json.Unmarshal([]byte(instamartItemFixture), &item))

	meta := pipeline.RecordMeta{Platform: "instamart", Query: "milk", StoreID: "1234567", Page: 0}
	products := target.Profile.Fields.Extract(pipeline.RawRecord{Value: item}, meta)
	require.Len(t, products, 2)

	first := products[0]
	assert.Equal(t, "JKV9837", first.ProductID)
	assert.Equal(t, "SKU-500", first.VariantID)
	assert.Equal(t, "Toned Milk Pouch", first.Name)
	assert.Equal(t, "Amul", first.Brand)
	assert.Equal(t, 28.0, first.Price)
	require.NotNil(t, first.MRP)
	assert.Equal(t, 30.0, *first.MRP)
	assert.Equal(t, "500 ml", first.Quantity)
	assert.True(t, first.InStock)
	require.NotNil(t, first.Inventory)
	assert.Equal(t, 10, *first.Inventory)
	require.NotNil(t, first.OrganicRank)
	assert.Equal(t, 3, *first.OrganicRank)
	// Image ids come first, media entries follow, shared ids appear once.
	assert.Equal(t, []string{
		instamartImagePrefix + "img-a",
		instamartImagePrefix + "img-b",
		instamartImagePrefix + "img-d",
	}, first.Images)

	// The second variation falls back to the parent record's display name
	// and picks up image ids from media entries alone.
	second := products[1]
	assert.Equal(t, "SKU-1000", second.VariantID)
	assert.Equal(t, "Toned Milk", second.Name)
	assert.False(t, second.InStock)
	assert.Equal(t, []string{instamartImagePrefix + "img-c"}, second.Images)
}

func TestInstamartRequest(t *testing.T) {
	req := buildInstamartRequest(nil, pipeline.PageRequest{
		Query:    "dark chocolate",
		Location: "1234567,12.9716,77.5946",
		Cursor:   pipeline.Cursor{Offset: 20},
	})

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "20", req.Query["offset"])
	assert.Equal(t, "1234567", req.Query["storeId"])
	assert.Equal(t, "1234567", req.Query["primaryStoreId"])
	assert.Equal(t, "12.9716", req.Cookies["lat"])
	assert.Equal(t, "77.5946", req.Cookies["lng"])
	assert.Contains(t, req.Headers["referer"], "dark+chocolate")

	body := req.JSONBody.(map[string]any)
	assert.Equal(t, "dark chocolate", body["query"])
	assert.Equal(t, 20, body["search_results_offset"])
}

func TestInstamartProfilePagination(t *testing.T) {
	target := Instamart(testDeps())

	assert.Equal(t, pipeline.CursorOffset, target.Profile.CursorStyle)
	assert.Equal(t, "data.searchResultsOffset", target.Profile.NextCursorPath)
	assert.True(t, target.Profile.ZeroCursorEnds)
	require.NotNil(t, target.Profile.SoftError)
	assert.Equal(t, "statusCode", target.Profile.SoftError.Path)
}
