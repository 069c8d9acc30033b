package channels

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Outcome classifies how a channel fetch ended. Dashboards render the
// zero-valued summary the same way for all three, but logs and metrics
// keep them distinguishable.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeUnconfigured Outcome = "unconfigured"
	OutcomeFailed       Outcome = "failed"
)

// FetchStatus is the typed result variant attached to every channel
// summary. Err is only set when Outcome is OutcomeFailed.
type FetchStatus struct {
	Outcome Outcome `json:"outcome"`
	Err     error   `json:"-"`
}

func statusOK() FetchStatus           { return FetchStatus{Outcome: OutcomeOK} }
func statusUnconfigured() FetchStatus { return FetchStatus{Outcome: OutcomeUnconfigured} }
func statusFailed(err error) FetchStatus {
	return FetchStatus{Outcome: OutcomeFailed, Err: err}
}

// Querier is the subset of pgxpool.Pool the channel repositories need.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Range is an inclusive date range. End is treated as end-of-day when
// the underlying column carries a time component.
type Range struct {
	Start time.Time
	End   time.Time
}

// EndOfDay returns the range end pushed to 23:59:59.999999999.
func (r Range) EndOfDay() time.Time {
	y, m, d := r.End.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), r.End.Location())
}

// sanitizeTable quotes a registry-resolved table name for safe
// interpolation. Identifiers cannot be bound as query parameters.
func sanitizeTable(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// fetchContext applies the per-channel timeout when one is configured.
func fetchContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
