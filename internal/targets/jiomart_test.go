package targets

import (
	"encoding/json"
	"testing"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jiomartResultFixture = `{
	"product": {
		"categories": ["Dairy & Bakery"],
		"variants": [
			{
				"id": "590000123",
				"title": "Fortune Sunflower Oil 1L",
				"brands": ["Fortune"],
				"uri": "/p/groceries/fortune-sunflower-oil",
				"images": [{"uri": "https://www.jiomart.com/images/product/590000123.jpg"}],
				"attributes": {
					"vertical_code": {"text": ["GROCERIES"]},
					"avg_selling_price": {"numbers": [152.5]},
					"buybox_mrp": {"text": [
						"2852|S1|JioMart Store One||180|164||16|8.8",
						"SK36|S2|JioMart Store Two||182|159||23|12.6"
					]}
				}
			}
		]
	}
}`

func TestParseBuyboxOffer(t *testing.T) {
	offer := parseBuyboxOffer("2852|S1|Seller||180|164||16|8.8")
	require.NotNil(t, offer)
	assert.Equal(t, "2852", offer.store)
	assert.Equal(t, 180.0, offer.mrp)
	assert.Equal(t, 164.0, offer.sellingPrice)

	assert.Nil(t, parseBuyboxOffer("too|few|fields"))
}

func TestMatchBuyboxOffer(t *testing.T) {
	texts := []string{
		"2852|S1|One||180|164||16|8.8",
		"SK36|S2|Two||182|159||23|12.6",
	}

	t.Run("matches by store code", func(t *testing.T) {
		offer := matchBuyboxOffer(texts, "SK36")
		require.NotNil(t, offer)
		assert.Equal(t, 159.0, offer.sellingPrice)
	})

	t.Run("no store code takes the first offer", func(t *testing.T) {
		offer := matchBuyboxOffer(texts, "")
		require.NotNil(t, offer)
		assert.Equal(t, "2852", offer.store)
	})

	t.Run("unknown store finds nothing", func(t *testing.T) {
		assert.Nil(t, matchBuyboxOffer(texts, "ZZ99"))
	})
}

func TestJioMartExtraction(t *testing.T) {
	target := JioMart(testDeps())

	var rec any
	require.NoError(t, json.Unmarshal([]byte(jiomartResultFixture), &rec))

	t.Run("store-priced record", func(t *testing.T) {
		meta := pipeline.RecordMeta{Platform: "jiomart", Query: "oil", StoreID: "SK36"}
		products := target.Profile.Fields.Extract(pipeline.RawRecord{Value: rec}, meta)
		require.Len(t, products, 1)

		p := products[0]
		assert.Equal(t, "590000123", p.ProductID)
		assert.Equal(t, "SK36", p.StoreID)
		assert.Equal(t, "Fortune Sunflower Oil 1L", p.Name)
		assert.Equal(t, "Fortune", p.Brand)
		assert.Equal(t, 159.0, p.Price)
		require.NotNil(t, p.MRP)
		assert.Equal(t, 182.0, *p.MRP)
		assert.True(t, p.InStock)
		assert.Equal(t, "Dairy & Bakery", p.Category)
		assert.Equal(t, "GROCERIES", p.SubCategory)
		assert.Equal(t, []string{"https://www.jiomart.com/images/product/590000123.jpg"}, p.Images)
	})

	t.Run("record priced only for other stores is dropped", func(t *testing.T) {
		meta := pipeline.RecordMeta{Platform: "jiomart", Query: "oil", StoreID: "ZZ99"}
		assert.Empty(t, target.Profile.Fields.Extract(pipeline.RawRecord{Value: rec}, meta))
	})

	t.Run("no store code falls back to the first offer", func(t *testing.T) {
		meta := pipeline.RecordMeta{Platform: "jiomart", Query: "oil"}
		products := target.Profile.Fields.Extract(pipeline.RawRecord{Value: rec}, meta)
		require.Len(t, products, 1)
		assert.Equal(t, "2852", products[0].StoreID)
		assert.Equal(t, 164.0, products[0].Price)
	})
}

func TestJioMartTransformFallbackPrice(t *testing.T) {
	var rec any
	require.NoError(t, json.Unmarshal([]byte(`{
		"product": {"variants": [{
			"id": "1", "title": "Unboxed Thing",
			"attributes": {"avg_selling_price": {"numbers": [99.0]}}
		}]}
	}`), &rec))

	out := jiomartTransform(rec, pipeline.RecordMeta{StoreID: "SK36"})
	require.NotNil(t, out)
	assert.Equal(t, 99.0, out.(map[string]any)["price"])
}

func TestJioMartRequest(t *testing.T) {
	t.Run("first page has no token", func(t *testing.T) {
		req := buildJioMartRequest(nil, pipeline.PageRequest{Query: "atta", Cursor: pipeline.Cursor{}})
		body := req.JSONBody.(map[string]any)
		_, hasToken := body["pageToken"]
		assert.False(t, hasToken)
		assert.Equal(t, "atta", body["query"])
		assert.Equal(t, 50, body["pageSize"])
		assert.Contains(t, req.Headers["referer"], "q=atta")
	})

	t.Run("token rides on later pages", func(t *testing.T) {
		req := buildJioMartRequest(nil, pipeline.PageRequest{Query: "atta", Cursor: pipeline.Cursor{Token: "tok-next"}})
		body := req.JSONBody.(map[string]any)
		assert.Equal(t, "tok-next", body["pageToken"])
	})
}

func TestJioMartPagination(t *testing.T) {
	target := JioMart(testDeps())
	assert.Equal(t, pipeline.CursorToken, target.Profile.CursorStyle)
	assert.Equal(t, "nextPageToken", target.Profile.NextCursorPath)
	assert.True(t, target.Profile.ZeroCursorEnds)
}
