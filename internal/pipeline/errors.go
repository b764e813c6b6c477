package pipeline

import "errors"

// ErrFetchFailed is terminal for a run: the page fetch failed again after
// the single refresh-and-retry the policy allows. The run still returns
// whatever was accumulated before the failure.
var ErrFetchFailed = errors.New("page fetch failed after session refresh")

// ErrSessionStale marks a response that suggests the session expired: a
// non-2xx status or a soft-error marker in the body. Recoverable exactly
// once per page via a session refresh.
var ErrSessionStale = errors.New("session appears stale")

// TerminationReason records why a run stopped. Every reason except
// ReasonFailed is a successful completion.
type TerminationReason string

const (
	ReasonExhausted    TerminationReason = "exhausted"
	ReasonLimitReached TerminationReason = "limit_reached"
	ReasonFailed       TerminationReason = "failed"
	ReasonCancelled    TerminationReason = "cancelled"
)
