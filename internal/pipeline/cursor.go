package pipeline

// CursorStyle selects how a target paginates. Page-number targets compute
// the next cursor locally; offset and token targets take it from the
// previous response body.
type CursorStyle int

const (
	// CursorPages increments a page number; FirstPage sets the base (0 or 1).
	CursorPages CursorStyle = iota
	// CursorOffset carries a numeric offset returned by the response.
	CursorOffset
	// CursorToken carries an opaque continuation token.
	CursorToken
)

// Cursor is the current pagination position. Only the field matching the
// target's style is meaningful.
type Cursor struct {
	Page   int
	Offset int
	Token  string
}

// zero reports whether the cursor value is the style's "empty" value. Some
// targets overload it to mean "no more data".
func (c Cursor) zero(style CursorStyle) bool {
	switch style {
	case CursorOffset:
		return c.Offset == 0
	case CursorToken:
		return c.Token == ""
	default:
		return false
	}
}

// PageRequest describes one page fetch: the search term, a location or
// store qualifier, and the pagination cursor.
type PageRequest struct {
	Query    string
	Location string
	Cursor   Cursor
	// Ordinal is the 0-based count of pages fetched so far in this run,
	// independent of the cursor value.
	Ordinal int
}
