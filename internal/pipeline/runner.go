package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/models"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/ratelimit"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/session"
)

// SessionSource is what the runner needs from the session layer: a cached
// acquire and an on-demand refresh. Refresh is called only on demonstrated
// failure, never speculatively per page.
type SessionSource interface {
	Acquire(ctx context.Context, platform, locationHint string) (*session.Session, error)
	Refresh(ctx context.Context, platform string, current *session.Session, locationHint string) (*session.Session, error)
}

// RunConfig bounds one scrape run: one query at one location.
type RunConfig struct {
	Query    string
	Location string
	MaxPages int
}

// Result is what a run hands back. The product list is always present,
// whatever the termination reason; expected failure modes are data here,
// not errors propagating past the runner.
type Result struct {
	Products      []*models.Product
	Reason        TerminationReason
	Pages         int
	Duplicates    int
	Skipped       int
	DegradedPages int
	Refreshes     int
}

// Runner drives one ScrapeRun: session bootstrap, the sequential page
// loop, the single refresh-and-retry per page, politeness delays and
// page-granular cancellation. Pages are never fetched in parallel within a
// run; the next cursor usually depends on the previous response.
type Runner struct {
	profile  *Profile
	fetcher  Fetcher
	sessions SessionSource
	limiter  ratelimit.Limiter
	metrics  *Metrics
	logger   *slog.Logger
}

func NewRunner(profile *Profile, fetcher Fetcher, sessions SessionSource, limiter ratelimit.Limiter, metrics *Metrics, logger *slog.Logger) *Runner {
	if limiter == nil {
		limiter = ratelimit.NopLimiter{}
	}
	return &Runner{
		profile:  profile,
		fetcher:  fetcher,
		sessions: sessions,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger.With("component", "runner", "platform", profile.Platform),
	}
}

// Run executes the scrape. The returned error is non-nil only for the two
// escalating failure modes: credential acquisition and a fetch that failed
// again after its one refresh. Even then the result carries everything
// accumulated so far.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	prof := r.profile
	result := &Result{}

	sess, err := r.sessions.Acquire(ctx, prof.Platform, cfg.Location)
	if err != nil {
		if prof.AllowPartialSession && prof.FallbackSession != nil {
			r.logger.Warn("running on partial session", "location", cfg.Location, "error", err)
			sess = prof.FallbackSession()
		} else {
			return nil, fmt.Errorf("session bootstrap: %w", err)
		}
	}

	acc := NewAccumulator(prof.CursorStyle, prof.FirstPage, cfg.MaxPages, prof.ZeroCursorEnds)
	meta := RecordMeta{
		Platform: prof.Platform,
		Query:    cfg.Query,
		StoreID:  cfg.Location,
	}
	if prof.StoreID != nil {
		meta.StoreID = prof.StoreID(sess, cfg.Location)
	}

	var runErr error
	for acc.State() == StateRunning {
		if ctx.Err() != nil {
			acc.Cancel()
			break
		}

		pageReq := PageRequest{
			Query:    cfg.Query,
			Location: cfg.Location,
			Cursor:   acc.Cursor(),
			Ordinal:  acc.Pages(),
		}

		dec, stale := r.fetchPage(ctx, sess, pageReq)
		if stale {
			// A fetch cut short by cancellation is not a stale session;
			// refreshing would mint credentials nobody will use.
			if ctx.Err() != nil {
				acc.Cancel()
				break
			}

			// Exactly one refresh and one retry of the same page. A second
			// failure means the target is blocking us; looping on refresh
			// would never converge.
			r.metrics.IncRefreshes(prof.Platform)
			result.Refreshes++

			fresh, rerr := r.sessions.Refresh(ctx, prof.Platform, sess, cfg.Location)
			if rerr != nil {
				if ctx.Err() != nil {
					acc.Cancel()
					break
				}
				r.logger.Error("session refresh failed", "error", rerr)
				acc.Fail()
				runErr = ErrFetchFailed
				break
			}
			sess = fresh

			dec, stale = r.fetchPage(ctx, sess, pageReq)
			if stale {
				if ctx.Err() != nil {
					acc.Cancel()
					break
				}
				r.logger.Warn("page fetch failed after refresh", "page", pageReq.Ordinal)
				acc.Fail()
				runErr = ErrFetchFailed
				break
			}
		}

		r.metrics.IncPages(prof.Platform)
		if dec.Degraded {
			r.metrics.IncDegraded(prof.Platform)
			result.DegradedPages++
		}

		meta.Page = pageReq.Ordinal
		added, skipped := 0, 0
		for _, rec := range dec.Records {
			products := prof.Fields.Extract(rec, meta)
			if len(products) == 0 {
				skipped++
				continue
			}
			for _, p := range products {
				if acc.Add(p) {
					added++
				}
			}
		}
		result.Skipped += skipped
		r.metrics.AddSkipped(prof.Platform, skipped)
		r.metrics.AddProducts(prof.Platform, added)

		r.logger.Info("page complete",
			"page", pageReq.Ordinal,
			"records", len(dec.Records),
			"new", added,
			"skipped", skipped,
		)

		if acc.EndPage(added, r.signals(dec.Document)) != StateRunning {
			break
		}

		if err := r.limiter.Wait(ctx); err != nil {
			acc.Cancel()
			break
		}
	}

	result.Products = acc.Products()
	result.Reason = acc.Reason()
	result.Pages = acc.Pages()
	result.Duplicates = acc.Duplicates()
	r.metrics.IncRuns(prof.Platform, result.Reason)

	r.logger.Info("run finished",
		"reason", result.Reason,
		"pages", result.Pages,
		"products", len(result.Products),
		"duplicates", result.Duplicates,
	)

	return result, runErr
}

// fetchPage performs one fetch and decode, reporting stale=true on
// transport errors, non-2xx statuses and soft-error markers.
func (r *Runner) fetchPage(ctx context.Context, sess *session.Session, pageReq PageRequest) (DecodeResult, bool) {
	req := r.profile.Build(sess, pageReq)

	body, status, err := r.fetcher.FetchPage(ctx, sess, req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Warn("fetch error", "page", pageReq.Ordinal, "error", err)
		}
		return DecodeResult{}, true
	}
	if status < 200 || status >= 300 {
		r.logger.Warn("non-2xx response", "page", pageReq.Ordinal, "status", status)
		return DecodeResult{}, true
	}

	dec := r.profile.Framing.Decode(body)
	if m := r.profile.SoftError; m != nil && matchMarker(dec.Document, *m) {
		r.logger.Warn("soft error marker in response", "page", pageReq.Ordinal)
		return DecodeResult{}, true
	}
	return dec, false
}

// signals reads the pagination hints the profile declares out of the
// decoded document.
func (r *Runner) signals(doc any) PageSignals {
	var sig PageSignals
	prof := r.profile

	if prof.MoreFlagPath != "" {
		if v, ok := lookupPath(doc, prof.MoreFlagPath); ok {
			if b, ok := toBool(v); ok {
				sig.More = &b
			}
		}
	}

	if prof.NextCursorPath != "" {
		if v, ok := lookupPath(doc, prof.NextCursorPath); ok {
			switch prof.CursorStyle {
			case CursorOffset:
				if n, ok := toInt(v); ok {
					sig.NextCursor = &Cursor{Offset: n}
				}
			case CursorToken:
				if s, ok := toString(v); ok {
					sig.NextCursor = &Cursor{Token: s}
				}
			}
		}
	}

	return sig
}
