package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/models"
)

// Accessor locates one field value inside a raw record. Accessors are tried
// in declaration order; the first one that yields a value wins. Exactly one
// of Path, RootPath, CSS, Regex, Const or NotContains should be set.
type Accessor struct {
	// Path resolves against the variant (or the record when there is no
	// variant expansion); RootPath always resolves against the record root.
	Path     string
	RootPath string

	// CSS selects from the record's HTML fragment; Attr reads an attribute
	// instead of the element text.
	CSS  string
	Attr string

	// Regex runs against the HTML fragment; capture group 1 is the value.
	Regex string

	Const string

	// NotContains yields true when the HTML fragment lacks every listed
	// substring. Models "in stock unless the page says otherwise".
	NotContains []string

	// Div divides the numeric value (paise-priced targets).
	Div float64
	// Negate inverts a boolean value.
	Negate bool
	// Each, for list values, is the subpath read from every element.
	Each string
	// Prefix is prepended to every list entry (CDN image prefixes).
	Prefix string

	// Append makes a list accessor extend the value matched so far instead
	// of acting as a fallback. Entries already present are dropped.
	Append bool
}

// Mapping is the declarative extraction contract for one target: guards
// that drop non-product records, an optional variant fan-out, and per-field
// accessor lists. Extraction is a pure function of the raw record.
type Mapping struct {
	// Guards must all match or the record is dropped silently.
	Guards []Marker
	// HTMLPath locates an embedded HTML fragment that CSS and Regex
	// accessors read from.
	HTMLPath string
	// VariantPath fans one record out into per-variant records.
	VariantPath string

	// Transform rewrites one variant before the field accessors run.
	// Targets whose record shapes dot paths cannot express (pipe-delimited
	// price strings, per-store offer selection) hook in here. Returning nil
	// drops the variant.
	Transform func(variant any, meta RecordMeta) any

	Fields map[string][]Accessor
}

// RecordMeta carries the run-scoped values stamped onto every product.
type RecordMeta struct {
	Platform string
	Query    string
	StoreID  string
	Page     int
}

// Extract maps one raw record onto zero or more normalized products.
// Records missing identity fields yield nothing; malformed values never
// panic, they degrade to zero values.
func (m Mapping) Extract(rec RawRecord, meta RecordMeta) []*models.Product {
	root := rec.Value
	for _, g := range m.Guards {
		if !matchMarker(root, g) {
			return nil
		}
	}

	html := rec.HTML
	if m.HTMLPath != "" {
		if v, ok := lookupPath(root, m.HTMLPath); ok {
			if s, ok := v.(string); ok {
				html = s
			}
		}
	}

	var doc *goquery.Document
	if html != "" && m.hasCSS() {
		if d, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			doc = d
		}
	}

	variants := []any{root}
	if m.VariantPath != "" {
		variants = collectPath(root, m.VariantPath)
	}

	var products []*models.Product
	for _, variant := range variants {
		if m.Transform != nil {
			variant = m.Transform(variant, meta)
			if variant == nil {
				continue
			}
		}
		p := m.extractOne(variant, root, html, doc, meta)
		if p != nil && p.Valid() {
			products = append(products, p)
		}
	}
	return products
}

func (m Mapping) extractOne(variant, root any, html string, doc *goquery.Document, meta RecordMeta) *models.Product {
	p := &models.Product{
		Platform:    meta.Platform,
		SearchQuery: meta.Query,
		StoreID:     meta.StoreID,
		Page:        meta.Page,
		ScrapedAt:   time.Now(),
	}

	for field, accessors := range m.Fields {
		val, ok := m.eval(accessors, variant, root, html, doc)
		if !ok {
			continue
		}
		assignField(p, field, val)
	}
	return p
}

func (m Mapping) hasCSS() bool {
	for _, accessors := range m.Fields {
		for _, a := range accessors {
			if a.CSS != "" {
				return true
			}
		}
	}
	return false
}

func (m Mapping) eval(accessors []Accessor, variant, root any, html string, doc *goquery.Document) (any, bool) {
	var base any
	var have bool
	for _, a := range accessors {
		// Once a value exists, only Append accessors still run; the rest
		// are fallbacks that already lost.
		if have && !a.Append {
			continue
		}
		v, ok := a.resolve(variant, root, html, doc)
		if !ok {
			continue
		}
		if !have {
			base, have = v, true
			continue
		}
		base = appendLists(base, v)
	}
	return base, have
}

// appendLists concatenates a later list value onto the one matched so far,
// keeping order and dropping entries already present.
func appendLists(base, extra any) any {
	bs, ok := base.([]string)
	if !ok {
		return base
	}
	es, ok := extra.([]string)
	if !ok {
		return base
	}
	seen := make(map[string]struct{}, len(bs))
	for _, s := range bs {
		seen[s] = struct{}{}
	}
	for _, s := range es {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		bs = append(bs, s)
	}
	return bs
}

func (a Accessor) resolve(variant, root any, html string, doc *goquery.Document) (any, bool) {
	var val any
	var ok bool

	switch {
	case a.Const != "":
		val, ok = a.Const, true
	case a.Path != "":
		val, ok = lookupPath(variant, a.Path)
	case a.RootPath != "":
		val, ok = lookupPath(root, a.RootPath)
	case a.CSS != "":
		if doc == nil {
			return nil, false
		}
		sel := doc.Find(a.CSS).First()
		if sel.Length() == 0 {
			return nil, false
		}
		if a.Attr != "" {
			val, ok = sel.Attr(a.Attr)
		} else {
			val, ok = strings.TrimSpace(sel.Text()), true
		}
	case a.Regex != "":
		re := compiledRegex(a.Regex)
		if re == nil || html == "" {
			return nil, false
		}
		match := re.FindStringSubmatch(html)
		if len(match) < 2 {
			return nil, false
		}
		val, ok = match[1], true
	case len(a.NotContains) > 0:
		if html == "" {
			return nil, false
		}
		absent := true
		for _, marker := range a.NotContains {
			if strings.Contains(html, marker) {
				absent = false
				break
			}
		}
		val, ok = absent, true
	default:
		return nil, false
	}

	if !ok || val == nil {
		return nil, false
	}
	// Empty strings fall through to the next accessor, so declaration
	// order gives "this field, or failing that, that one" semantics.
	if s, isStr := val.(string); isStr && s == "" {
		return nil, false
	}

	if a.Each != "" || a.Prefix != "" {
		return a.resolveList(val)
	}
	if a.Div > 0 {
		f, ok := toFloat(val)
		if !ok {
			return nil, false
		}
		return f / a.Div, true
	}
	if a.Negate {
		b, ok := toBool(val)
		if !ok {
			return nil, false
		}
		return !b, true
	}
	return val, true
}

// resolveList turns an array value into a deduped, ordered string list.
func (a Accessor) resolveList(val any) (any, bool) {
	arr, ok := val.([]any)
	if !ok {
		return nil, false
	}

	seen := make(map[string]struct{})
	var out []string
	for _, elem := range arr {
		v := elem
		if a.Each != "" {
			stepped, ok := lookupPath(elem, a.Each)
			if !ok {
				continue
			}
			v = stepped
		}
		s, ok := toString(v)
		if !ok || s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, a.Prefix+s)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func assignField(p *models.Product, field string, val any) {
	switch field {
	case "product_id":
		p.ProductID, _ = toString(val)
	case "variant_id":
		p.VariantID, _ = toString(val)
	case "store_id":
		if s, ok := toString(val); ok && s != "" {
			p.StoreID = s
		}
	case "name":
		p.Name, _ = toString(val)
	case "brand":
		p.Brand, _ = toString(val)
	case "quantity":
		p.Quantity, _ = toString(val)
	case "category":
		p.Category, _ = toString(val)
	case "sub_category":
		p.SubCategory, _ = toString(val)
	case "price":
		if f, ok := toFloat(val); ok {
			p.Price = f
		}
	case "mrp":
		if f, ok := toFloat(val); ok {
			p.MRP = &f
		}
	case "rating":
		if f, ok := toFloat(val); ok {
			p.Rating = &f
		}
	case "in_stock":
		if b, ok := toBool(val); ok {
			p.InStock = b
		}
	case "inventory":
		if i, ok := toInt(val); ok {
			p.Inventory = &i
		}
	case "max_allowed_quantity":
		if i, ok := toInt(val); ok {
			p.MaxAllowedQuantity = &i
		}
	case "organic_rank":
		if i, ok := toInt(val); ok {
			p.OrganicRank = &i
		}
	case "images":
		switch t := val.(type) {
		case []string:
			p.Images = t
		case string:
			p.Images = []string{t}
		}
	}
}

func matchMarker(v any, m Marker) bool {
	val, ok := lookupPath(v, m.Path)
	if !ok {
		return false
	}
	s, ok := toString(val)
	if !ok {
		return false
	}
	if strings.HasSuffix(m.Equals, "*") {
		return strings.HasPrefix(s, strings.TrimSuffix(m.Equals, "*"))
	}
	return s == m.Equals
}

var numberPattern = regexp.MustCompile(`-?[0-9][0-9,]*(?:\.[0-9]+)?`)

// toFloat parses numbers defensively: currency symbols, thousands
// separators and unit suffixes are tolerated, garbage is not an error.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		match := numberPattern.FindString(t)
		if match == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

var (
	regexCacheMu sync.Mutex
	regexCache   = make(map[string]*regexp.Regexp)
)

func compiledRegex(pattern string) *regexp.Regexp {
	regexCacheMu.Lock()
	defer regexCacheMu.Unlock()

	if re, ok := regexCache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	regexCache[pattern] = re
	return re
}
