package pipeline

import (
	"time"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/session"
)

// Request is the target-neutral description of one page fetch, produced by
// a Profile's request builder and executed by the Fetcher. Session cookies
// and headers are merged in by the fetcher; values here win on conflict.
type Request struct {
	Method  string
	URL     string
	Query   map[string]string
	Headers map[string]string
	Cookies map[string]string
	// JSONBody, when non-nil, is marshalled as the request body.
	JSONBody any
}

// Marker matches a value inside a decoded response body. Used for
// soft-error detection and guard conditions.
type Marker struct {
	Path   string
	Equals string
}

// Profile declares everything target-specific the pipeline needs: how to
// build requests, how responses are framed, where the cursor and more-flag
// live, and how raw records map onto Product fields. Profiles are immutable
// values; adding a target is data, not new control flow.
type Profile struct {
	Platform string

	// Build produces the page request from the current session and cursor.
	// Site-specific glue (signatures, header templates) lives here.
	Build func(sess *session.Session, req PageRequest) *Request

	Framing Framing
	Fields  Mapping

	CursorStyle CursorStyle
	// FirstPage is the starting page number for CursorPages targets.
	FirstPage int
	// NextCursorPath locates the next offset/token in the response document.
	NextCursorPath string
	// MoreFlagPath locates an explicit "more results" boolean, when the
	// target provides one.
	MoreFlagPath string
	// ZeroCursorEnds treats a zero/empty next cursor as the exhausted
	// signal. Targets overload zero inconsistently, so this is a
	// per-target capability, never assumed.
	ZeroCursorEnds bool

	// StoreID maps the run's location hint onto the store identifier
	// stamped on extracted products. Nil means the hint already is the
	// store id. Targets that resolve the hint to an internal store code
	// during session bootstrap read it back off the session here.
	StoreID func(sess *session.Session, location string) string

	// SoftError marks responses that report failure inside a 2xx body.
	SoftError *Marker

	// AllowPartialSession permits running on template cookies when token
	// acquisition fails. Off by default: a partial session is normally an
	// abort, not a degraded mode.
	AllowPartialSession bool
	// FallbackSession supplies the template material used when
	// AllowPartialSession applies.
	FallbackSession func() *session.Session

	// PageDelay overrides the configured inter-page politeness delay.
	PageDelay time.Duration
}
