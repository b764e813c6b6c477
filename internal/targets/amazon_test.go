package targets

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const amazonRowHTML = `<div data-asin="B0TEST123" class="s-result-item">` +
	`<h2 aria-label="Tata Salt, 1kg Pack"><span>Tata Salt, 1kg Pack</span></h2>` +
	`<span class="a-size-base-plus">Tata</span>` +
	`<i aria-label="4.4 out of 5 stars"></i>` +
	`<span class="a-price"><span class="a-offscreen">₹28.00</span>` +
	`<span class="a-price-whole">28</span><span class="a-price-fraction">00</span></span>` +
	`<img src="https://m.media-amazon.com/images/I/tata-salt.jpg" class="s-image"/>` +
	`</div>`

func amazonChunk(t *testing.T, slot string, html string) pipeline.RawRecord {
	t.Helper()
	raw, err := json.Marshal([]any{"dispatch", slot, map[string]any{"html": html}})
	require.NoError(t, err)
	var v any
	require.NoError(t, json.Unmarshal(raw, &v))
	return pipeline.RawRecord{Value: v}
}

func TestAmazonChunkExtraction(t *testing.T) {
	target := Amazon(testDeps())
	meta := pipeline.RecordMeta{Platform: "amazon", Query: "salt", StoreID: "560037", Page: 1}

	products := target.Profile.Fields.Extract(amazonChunk(t, "data-main-slot:search-result-3", amazonRowHTML), meta)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, "B0TEST123", p.ProductID)
	assert.Equal(t, "B0TEST123", p.VariantID)
	assert.Equal(t, "Tata Salt, 1kg Pack", p.Name)
	assert.Equal(t, "Tata", p.Brand)
	assert.Equal(t, 28.0, p.Price)
	require.NotNil(t, p.Rating)
	assert.Equal(t, 4.4, *p.Rating)
	assert.True(t, p.InStock)
	assert.Equal(t, []string{"https://m.media-amazon.com/images/I/tata-salt.jpg"}, p.Images)
	// Search result HTML carries no rank signal; every row reports rank 0.
	require.NotNil(t, p.OrganicRank)
	assert.Equal(t, 0, *p.OrganicRank)
}

func TestAmazonChunkGuards(t *testing.T) {
	target := Amazon(testDeps())
	meta := pipeline.RecordMeta{Platform: "amazon"}

	t.Run("non-result slots are dropped", func(t *testing.T) {
		rec := amazonChunk(t, "data-search-metadata", amazonRowHTML)
		assert.Empty(t, target.Profile.Fields.Extract(rec, meta))
	})

	t.Run("scalar chunks are dropped", func(t *testing.T) {
		var v any
		require.NoError(t, json.Unmarshal([]byte(`{"some":"metadata"}`), &v))
		assert.Empty(t, target.Profile.Fields.Extract(pipeline.RawRecord{Value: v}, meta))
	})

	t.Run("rows without an asin are dropped", func(t *testing.T) {
		rec := amazonChunk(t, "data-main-slot:search-result-1", `<div class="s-result-item"><h2><span>No Asin</span></h2></div>`)
		assert.Empty(t, target.Profile.Fields.Extract(rec, meta))
	})
}

func TestAmazonUnavailableRow(t *testing.T) {
	target := Amazon(testDeps())

	// Amazon renders either marker depending on the listing type; both
	// must flip the row to out of stock.
	for _, marker := range []string{"Currently unavailable", "Out of stock"} {
		t.Run(marker, func(t *testing.T) {
			html := fmt.Sprintf(`<div data-asin="B0GONE"><h2 aria-label="Gone"><span>Gone</span></h2>%s</div>`, marker)

			products := target.Profile.Fields.Extract(amazonChunk(t, "data-main-slot:search-result-2", html), pipeline.RecordMeta{Platform: "amazon"})
			require.Len(t, products, 1)
			assert.False(t, products[0].InStock)
		})
	}
}

func TestAmazonRequest(t *testing.T) {
	req := buildAmazonRequest(nil, pipeline.PageRequest{
		Query:    "salt",
		Location: "560037",
		Cursor:   pipeline.Cursor{Page: 3},
	})

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, amazonBaseURL+"/s/query", req.URL)
	assert.Equal(t, "salt", req.Query["k"])
	assert.Equal(t, amazonDefaultStore, req.Query["i"])
	assert.Equal(t, "3", req.Query["page"])
	assert.NotEmpty(t, req.Query["qid"])
}

func TestAmazonPartialSessionCapability(t *testing.T) {
	target := Amazon(testDeps())

	require.True(t, target.Profile.AllowPartialSession)
	require.NotNil(t, target.Profile.FallbackSession)

	sess := target.Profile.FallbackSession()
	assert.Equal(t, "INR", sess.Cookies["i18n-prefs"])
	assert.Empty(t, sess.Token)
}
