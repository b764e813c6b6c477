package pipeline

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, raw string) RawRecord {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return RawRecord{Value: v}
}

func TestExtractBasicFields(t *testing.T) {
	m := Mapping{
		Fields: map[string][]Accessor{
			"product_id": {{Path: "id"}},
			"name":       {{Path: "display_name"}},
			"brand":      {{Path: "brand"}},
			"price":      {{Path: "offer_price"}},
			"mrp":        {{Path: "mrp"}},
			"in_stock":   {{Path: "available"}},
		},
	}
	meta := RecordMeta{Platform: "instamart", Query: "milk", StoreID: "S1", Page: 2}

	rec := record(t, `{
		"id": "ABC123",
		"display_name": "Toned Milk 500ml",
		"brand": "Amul",
		"offer_price": 33.5,
		"mrp": 36,
		"available": true
	}`)

	products := m.Extract(rec, meta)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, "ABC123", p.ProductID)
	assert.Equal(t, "Toned Milk 500ml", p.Name)
	assert.Equal(t, "Amul", p.Brand)
	assert.Equal(t, 33.5, p.Price)
	require.NotNil(t, p.MRP)
	assert.Equal(t, 36.0, *p.MRP)
	assert.True(t, p.InStock)
	assert.Equal(t, "instamart", p.Platform)
	assert.Equal(t, "milk", p.SearchQuery)
	assert.Equal(t, "S1", p.StoreID)
	assert.Equal(t, 2, p.Page)
}

func TestExtractMissingIdentityYieldsNothing(t *testing.T) {
	m := Mapping{
		Fields: map[string][]Accessor{
			"product_id": {{Path: "id"}},
			"name":       {{Path: "name"}},
			"price":      {{Path: "price"}},
		},
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"missing product id", `{"name": "Orphan", "price": 10}`},
		{"missing name", `{"id": "X1", "price": 10}`},
		{"scalar record", `42`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, m.Extract(record(t, tt.raw), RecordMeta{Platform: "p"}))
		})
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	m := Mapping{
		Fields: map[string][]Accessor{
			"product_id": {{Path: "id"}},
			"name":       {{Path: "name"}},
			"price":      {{Path: "price"}},
		},
	}
	rec := record(t, `{"id": "X1", "name": "Widget", "price": "₹1,299.00"}`)
	meta := RecordMeta{Platform: "amazon", Query: "widget"}

	first := m.Extract(rec, meta)
	second := m.Extract(rec, meta)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Identity(), second[0].Identity())
	assert.Equal(t, first[0].Price, second[0].Price)
	assert.Equal(t, 1299.0, first[0].Price)
}

func TestExtractGuards(t *testing.T) {
	m := Mapping{
		Guards: []Marker{{Path: "widget_type", Equals: "PRODUCT_*"}},
		Fields: map[string][]Accessor{
			"product_id": {{Path: "id"}},
			"name":       {{Path: "name"}},
		},
	}

	assert.Len(t, m.Extract(record(t, `{"widget_type": "PRODUCT_GRID", "id": "1", "name": "A"}`), RecordMeta{}), 1)
	assert.Empty(t, m.Extract(record(t, `{"widget_type": "BANNER", "id": "1", "name": "A"}`), RecordMeta{}))
	assert.Empty(t, m.Extract(record(t, `{"id": "1", "name": "A"}`), RecordMeta{}))
}

func TestExtractVariantFanOut(t *testing.T) {
	m := Mapping{
		VariantPath: "variations[]",
		Fields: map[string][]Accessor{
			"product_id": {{RootPath: "product_id"}},
			"variant_id": {{Path: "id"}},
			"name":       {{Path: "name"}, {RootPath: "display_name"}},
			"price":      {{Path: "price.offer_price"}},
			"quantity":   {{Path: "sku_quantity_with_combo"}},
		},
	}

	rec := record(t, `{
		"product_id": "P9",
		"display_name": "Banana",
		"variations": [
			{"id": "V1", "sku_quantity_with_combo": "6 pcs", "price": {"offer_price": 42}},
			{"id": "V2", "sku_quantity_with_combo": "12 pcs", "price": {"offer_price": 79}}
		]
	}`)

	products := m.Extract(rec, RecordMeta{Platform: "instamart"})
	require.Len(t, products, 2)

	assert.Equal(t, "P9", products[0].ProductID)
	assert.Equal(t, "V1", products[0].VariantID)
	assert.Equal(t, "Banana", products[0].Name)
	assert.Equal(t, "6 pcs", products[0].Quantity)
	assert.Equal(t, 42.0, products[0].Price)

	assert.Equal(t, "V2", products[1].VariantID)
	assert.Equal(t, 79.0, products[1].Price)

	// Distinct identities even though the parent product is shared.
	assert.NotEqual(t, products[0].Identity(), products[1].Identity())
}

func TestExtractAccessorFallbackOrder(t *testing.T) {
	m := Mapping{
		Fields: map[string][]Accessor{
			"product_id": {{Path: "id"}},
			"name":       {{Path: "title"}, {Path: "name"}},
			"store_id":   {{Const: "default-store"}},
		},
	}

	p := m.Extract(record(t, `{"id": "1", "name": "Fallback Name"}`), RecordMeta{StoreID: "meta-store"})
	require.Len(t, p, 1)
	assert.Equal(t, "Fallback Name", p[0].Name)
	assert.Equal(t, "default-store", p[0].StoreID)
}

func TestExtractTransforms(t *testing.T) {
	m := Mapping{
		Fields: map[string][]Accessor{
			"product_id": {{Path: "id"}},
			"name":       {{Path: "name"}},
			"price":      {{Path: "sellingPrice", Div: 100}},
			"in_stock":   {{Path: "outOfStock", Negate: true}},
			"images":     {{Path: "images[]", Each: "path", Prefix: "https://cdn.example.com/"}},
		},
	}

	rec := record(t, `{
		"id": "Z1",
		"name": "Curd 400g",
		"sellingPrice": 12900,
		"outOfStock": false,
		"images": [
			{"path": "a.jpg"},
			{"path": "b.jpg"},
			{"path": "a.jpg"}
		]
	}`)

	products := m.Extract(rec, RecordMeta{Platform: "zepto"})
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, 129.0, p.Price)
	assert.True(t, p.InStock)
	assert.Equal(t, []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"}, p.Images)
}

func TestExtractHTMLAccessors(t *testing.T) {
	m := Mapping{
		HTMLPath: "html",
		Fields: map[string][]Accessor{
			"product_id": {{Path: "asin"}},
			"name":       {{CSS: "h2 span"}},
			"price":      {{CSS: "span.a-price span.a-offscreen"}},
			"brand":      {{Regex: `data-brand="([^"]+)"`}},
			"in_stock":   {{NotContains: []string{"Currently unavailable"}}},
		},
	}

	rec := record(t, `{
		"asin": "B0TEST",
		"html": "<div data-brand=\"Acme\"><h2><span>Steel Bottle 1L</span></h2><span class=\"a-price\"><span class=\"a-offscreen\">₹549.00</span></span></div>"
	}`)

	products := m.Extract(rec, RecordMeta{Platform: "amazon"})
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, "B0TEST", p.ProductID)
	assert.Equal(t, "Steel Bottle 1L", p.Name)
	assert.Equal(t, 549.0, p.Price)
	assert.Equal(t, "Acme", p.Brand)
	assert.True(t, p.InStock)
}

func TestExtractStockMarkers(t *testing.T) {
	m := Mapping{
		HTMLPath: "html",
		Fields: map[string][]Accessor{
			"product_id": {{Path: "asin"}},
			"name":       {{Const: "x"}},
			"in_stock":   {{NotContains: []string{"Currently unavailable", "Out of stock"}}},
		},
	}

	tests := []struct {
		name    string
		html    string
		inStock bool
	}{
		{"no markers", "<div><h2>Fine</h2></div>", true},
		{"unavailable marker", "<div>Currently unavailable</div>", false},
		{"out of stock marker", "<div>Out of stock</div>", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record(t, fmt.Sprintf(`{"asin": "B0TEST", "html": %q}`, tt.html))
			products := m.Extract(rec, RecordMeta{Platform: "amazon"})
			require.Len(t, products, 1)
			assert.Equal(t, tt.inStock, products[0].InStock)
		})
	}
}

func TestExtractAppendedImageLists(t *testing.T) {
	m := Mapping{
		Fields: map[string][]Accessor{
			"product_id": {{Path: "id"}},
			"name":       {{Path: "name"}},
			"images": {
				{Path: "imageIds", Prefix: "cdn/"},
				{Path: "medias", Each: "id", Prefix: "cdn/", Append: true},
			},
		},
	}

	// Both sources present: ordered concatenation with shared entries
	// dropped, not first-match-wins.
	rec := record(t, `{
		"id": "I1",
		"name": "Milk 1L",
		"imageIds": ["a", "b"],
		"medias": [{"id": "b"}, {"id": "c"}]
	}`)
	products := m.Extract(rec, RecordMeta{})
	require.Len(t, products, 1)
	assert.Equal(t, []string{"cdn/a", "cdn/b", "cdn/c"}, products[0].Images)

	// First source empty: the appending accessor supplies the whole list.
	rec = record(t, `{"id": "I2", "name": "Curd", "medias": [{"id": "z"}]}`)
	products = m.Extract(rec, RecordMeta{})
	require.Len(t, products, 1)
	assert.Equal(t, []string{"cdn/z"}, products[0].Images)
}

func TestExtractMalformedValuesDegradeQuietly(t *testing.T) {
	m := Mapping{
		Fields: map[string][]Accessor{
			"product_id": {{Path: "id"}},
			"name":       {{Path: "name"}},
			"price":      {{Path: "price"}},
			"rating":     {{Path: "rating"}},
			"inventory":  {{Path: "inventory"}},
		},
	}

	rec := record(t, `{
		"id": "M1",
		"name": "Messy",
		"price": "not a number",
		"rating": {"unexpected": "object"},
		"inventory": "12 units"
	}`)

	products := m.Extract(rec, RecordMeta{})
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, 0.0, p.Price)
	assert.Nil(t, p.Rating)
	require.NotNil(t, p.Inventory)
	assert.Equal(t, 12, *p.Inventory)
}

func TestToFloatDefensive(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{"₹1,299.00", 1299, true},
		{"1,02,999", 102999, true},
		{"33.5", 33.5, true},
		{"-20", -20, true},
		{"500 ml", 500, true},
		{42.0, 42, true},
		{7, 7, true},
		{"no digits here", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := toFloat(tt.in)
		assert.Equal(t, tt.wantOK, ok, "input %v", tt.in)
		assert.Equal(t, tt.want, got, "input %v", tt.in)
	}
}
