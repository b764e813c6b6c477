// Package sink writes scrape results to files for the one-shot CLI.
package sink

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/models"
)

// Writer serializes a batch of products to an output stream.
type Writer interface {
	Write(w io.Writer, products []*models.Product) error
}

// ForFormat returns the writer for a format name.
func ForFormat(format string) (Writer, error) {
	switch format {
	case "json":
		return JSONWriter{}, nil
	case "csv":
		return CSVWriter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// JSONWriter emits the products as an indented JSON array.
type JSONWriter struct{}

func (JSONWriter) Write(w io.Writer, products []*models.Product) error {
	if products == nil {
		products = []*models.Product{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(products); err != nil {
		return fmt.Errorf("encode products: %w", err)
	}
	return nil
}

// CSVWriter emits one row per product in the fixed column order.
type CSVWriter struct{}

func (CSVWriter) Write(w io.Writer, products []*models.Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.CSVHeader()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range products {
		if err := cw.Write(csvRow(p)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(p *models.Product) []string {
	return []string{
		p.Platform,
		p.SearchQuery,
		p.StoreID,
		p.ProductID,
		p.VariantID,
		p.Name,
		p.Brand,
		formatFloatPtr(p.MRP),
		strconv.FormatFloat(p.Price, 'f', -1, 64),
		p.Quantity,
		strconv.FormatBool(p.InStock),
		formatIntPtr(p.Inventory),
		formatIntPtr(p.MaxAllowedQuantity),
		p.Category,
		p.SubCategory,
		strings.Join(p.Images, " "),
		formatIntPtr(p.OrganicRank),
		formatFloatPtr(p.Rating),
		strconv.Itoa(p.Page),
	}
}

func formatFloatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatIntPtr(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}
