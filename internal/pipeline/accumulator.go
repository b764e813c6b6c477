package pipeline

import (
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/models"
)

// RunState is the pagination state machine. Running is the only
// non-terminal state; every terminal state except Failed is a successful
// completion and the accumulated products are returned either way.
type RunState int

const (
	StateRunning RunState = iota
	StateExhausted
	StateLimitReached
	StateFailed
	StateCancelled
)

// PageSignals are the pagination hints read from one decoded page.
type PageSignals struct {
	// More is the explicit "more results" flag, when the target has one.
	More *bool
	// NextCursor is the cursor value the response handed back; nil when the
	// response carried none.
	NextCursor *Cursor
}

// Accumulator merges products across pages by identity (first-seen-wins)
// and decides when pagination stops: explicit more-flag, three consecutive
// pages with no new records, cursor exhaustion, or the page limit.
type Accumulator struct {
	style    CursorStyle
	zeroEnds bool
	maxPages int
	cursor   Cursor
	seen     map[string]struct{}
	products []*models.Product
	state    RunState
	reason   TerminationReason
	pages    int
	emptyRun int
	dupes    int
}

func NewAccumulator(style CursorStyle, firstPage, maxPages int, zeroCursorEnds bool) *Accumulator {
	return &Accumulator{
		style:    style,
		zeroEnds: zeroCursorEnds,
		maxPages: maxPages,
		cursor:   Cursor{Page: firstPage},
		seen:     make(map[string]struct{}),
		state:    StateRunning,
	}
}

// Add accumulates one product. Returns false for duplicates: a later
// record with an identity already seen never overwrites the first one.
func (a *Accumulator) Add(p *models.Product) bool {
	id := p.Identity()
	if _, dup := a.seen[id]; dup {
		a.dupes++
		return false
	}
	a.seen[id] = struct{}{}
	a.products = append(a.products, p)
	return true
}

// EndPage records the outcome of one fetched page and advances the state
// machine and cursor.
func (a *Accumulator) EndPage(added int, sig PageSignals) RunState {
	if a.state != StateRunning {
		return a.state
	}
	a.pages++

	if added == 0 {
		a.emptyRun++
	} else {
		a.emptyRun = 0
	}

	// An explicit "no more results" beats every heuristic.
	if sig.More != nil && !*sig.More {
		return a.finish(StateExhausted, ReasonExhausted)
	}

	if a.emptyRun >= 3 {
		return a.finish(StateExhausted, ReasonExhausted)
	}

	switch a.style {
	case CursorPages:
		a.cursor.Page++
	case CursorOffset, CursorToken:
		if sig.NextCursor == nil {
			return a.finish(StateExhausted, ReasonExhausted)
		}
		next := *sig.NextCursor
		// Some targets overload a zero cursor to mean "no more data". That
		// reading is a per-target capability, never assumed universally.
		if a.zeroEnds && next.zero(a.style) {
			return a.finish(StateExhausted, ReasonExhausted)
		}
		a.cursor = next
	}

	if a.pages >= a.maxPages {
		return a.finish(StateLimitReached, ReasonLimitReached)
	}
	return a.state
}

// Fail moves the run to the Failed terminal state; accumulated products
// stay available.
func (a *Accumulator) Fail() RunState {
	return a.finish(StateFailed, ReasonFailed)
}

// Cancel stops the run between pages with partial results.
func (a *Accumulator) Cancel() RunState {
	return a.finish(StateCancelled, ReasonCancelled)
}

func (a *Accumulator) finish(s RunState, r TerminationReason) RunState {
	a.state = s
	a.reason = r
	return s
}

func (a *Accumulator) State() RunState              { return a.state }
func (a *Accumulator) Reason() TerminationReason    { return a.reason }
func (a *Accumulator) Cursor() Cursor               { return a.cursor }
func (a *Accumulator) Pages() int                   { return a.pages }
func (a *Accumulator) Duplicates() int              { return a.dupes }
func (a *Accumulator) Products() []*models.Product  { return a.products }
