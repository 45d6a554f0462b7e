package ledger

import (
	"context"

	"github.com/kuitang/webact/internal/interact"
	"github.com/kuitang/webact/internal/obs"
	"github.com/kuitang/webact/internal/report"
)

// Reporter appends every entry to the ledger. Write failures are logged, never
// surfaced to the interaction that produced the entry.
type Reporter struct {
	l *Ledger
}

var _ interact.Reporter = (*Reporter)(nil)

func NewReporter(l *Ledger) *Reporter {
	return &Reporter{l: l}
}

func (r *Reporter) RecordPass(ctx context.Context, message string, ev *interact.Evidence) {
	r.append(ctx, report.NewEntry(ctx, true, message, ev))
}

func (r *Reporter) RecordFail(ctx context.Context, message string, ev *interact.Evidence) {
	r.append(ctx, report.NewEntry(ctx, false, message, ev))
}

func (r *Reporter) append(ctx context.Context, e report.Entry) {
	if err := r.l.Append(context.WithoutCancel(ctx), e); err != nil {
		obs.From(ctx).Warn("ledger append failed", "pkg", "ledger", "entry_id", e.ID, "error", err)
	}
}
