package models

import (
	"fmt"
	"time"
)

// Product is the normalized record every target's extractor maps into.
// Nullable fields use pointers so absent values serialize as null.
type Product struct {
	Platform           string   `json:"platform"`
	SearchQuery        string   `json:"search_query"`
	StoreID            string   `json:"store_id"`
	ProductID          string   `json:"product_id"`
	VariantID          string   `json:"variant_id"`
	Name               string   `json:"name"`
	Brand              string   `json:"brand"`
	MRP                *float64 `json:"mrp"`
	Price              float64  `json:"price"`
	Quantity           string   `json:"quantity"`
	InStock            bool     `json:"in_stock"`
	Inventory          *int     `json:"inventory"`
	MaxAllowedQuantity *int     `json:"max_allowed_quantity"`
	Category           string   `json:"category"`
	SubCategory        string   `json:"sub_category"`
	Images             []string `json:"images"`
	OrganicRank        *int     `json:"organic_rank"`
	Rating             *float64 `json:"rating"`
	Page               int      `json:"page"`

	ScrapedAt time.Time `json:"scraped_at,omitempty"`
}

// Identity is the dedup key: two products with the same identity are the
// same entity and the first-seen one wins.
func (p *Product) Identity() string {
	return fmt.Sprintf("%s|%s|%s|%s", p.Platform, p.StoreID, p.ProductID, p.VariantID)
}

// Valid reports whether the record carries the minimum identity fields.
// Records without them model ad slots and placeholder fragments and are
// dropped rather than treated as errors.
func (p *Product) Valid() bool {
	return p.ProductID != "" && p.Name != ""
}

// CSVHeader is the column order used by file sinks.
func CSVHeader() []string {
	return []string{
		"platform", "search_query", "store_id", "product_id", "variant_id",
		"name", "brand", "mrp", "price", "quantity", "in_stock", "inventory",
		"max_allowed_quantity", "category", "sub_category", "images",
		"organic_rank", "rating", "page",
	}
}
