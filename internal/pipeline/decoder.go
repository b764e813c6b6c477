package pipeline

import (
	"encoding/json"
	"strconv"
	"strings"
)

// RawRecord is one semi-structured unit decoded from a page body: a JSON
// fragment, an HTML fragment, or both. No normalization has happened yet.
type RawRecord struct {
	Value any
	HTML  string
}

// DecodeResult is what a framing produces for one page. Decoding is total:
// any byte string yields a (possibly empty) record sequence plus
// diagnostics, never an error.
type DecodeResult struct {
	Records []RawRecord
	// Document is the parsed response root, used for cursor, more-flag and
	// soft-error lookups.
	Document any
	// SkippedChunks counts malformed chunks dropped silently.
	SkippedChunks int
	// Degraded is set when the body produced no records at all.
	Degraded bool
}

// Framing converts a raw response body into raw records.
type Framing interface {
	Decode(body []byte) DecodeResult
}

// ChunkedFraming handles the multi-chunk delimited style: the body is split
// on a fixed delimiter and each non-empty chunk beginning with '{' or '['
// is parsed as JSON independently. One bad chunk never fails the page.
type ChunkedFraming struct {
	Delimiter string
}

func (f ChunkedFraming) Decode(body []byte) DecodeResult {
	var res DecodeResult

	chunks := strings.Split(string(body), f.Delimiter)
	parsed := make([]any, 0, len(chunks))
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if chunk[0] != '{' && chunk[0] != '[' {
			res.SkippedChunks++
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(chunk), &v); err != nil {
			res.SkippedChunks++
			continue
		}
		parsed = append(parsed, v)
		res.Records = append(res.Records, RawRecord{Value: v})
	}

	res.Document = parsed
	res.Degraded = len(res.Records) == 0
	return res
}

// JSONPathFraming handles single-document responses: records are collected
// by walking a declarative dot path with [] array expansion, for example
// "data.cards[].card.card.gridElements.infoWithStyle.items[]".
type JSONPathFraming struct {
	Path string
}

func (f JSONPathFraming) Decode(body []byte) DecodeResult {
	var res DecodeResult

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		res.Degraded = true
		return res
	}
	res.Document = doc

	for _, v := range collectPath(doc, f.Path) {
		res.Records = append(res.Records, RawRecord{Value: v})
	}
	res.Degraded = len(res.Records) == 0
	return res
}

// collectPath walks a dot path through nested maps and slices. A segment
// ending in [] expands the slice at that key; a bare numeric segment
// indexes into a slice. Missing or mistyped segments yield nothing.
func collectPath(v any, path string) []any {
	if path == "" {
		return []any{v}
	}

	current := []any{v}
	for _, seg := range strings.Split(path, ".") {
		expand := strings.HasSuffix(seg, "[]")
		key := strings.TrimSuffix(seg, "[]")

		var next []any
		for _, c := range current {
			stepped := step(c, key)
			if stepped == nil {
				continue
			}
			if expand {
				arr, ok := stepped.([]any)
				if !ok {
					continue
				}
				next = append(next, arr...)
			} else {
				next = append(next, stepped)
			}
		}
		current = next
		if len(current) == 0 {
			return nil
		}
	}
	return current
}

// lookupPath resolves a dot path to a single value.
func lookupPath(v any, path string) (any, bool) {
	vals := collectPath(v, path)
	if len(vals) == 0 {
		return nil, false
	}
	return vals[0], true
}

func step(v any, key string) any {
	if key == "" {
		return v
	}
	switch t := v.(type) {
	case map[string]any:
		return t[key]
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(t) {
			return nil
		}
		return t[idx]
	default:
		return nil
	}
}
