package evidence

import (
	"context"
	"time"

	"github.com/kuitang/webact/internal/interact"
	"github.com/kuitang/webact/internal/obs"
)

const uploadTimeout = 30 * time.Second

// Uploader stores a screenshot and returns where it can be fetched.
type Uploader interface {
	Put(ctx context.Context, runID string, png []byte) (string, error)
}

// Reporter uploads evidence before handing the entry to the next reporter, so that the
// entry carries the stored URL. Upload failures are logged and the entry is delivered
// with its inline screenshot only.
type Reporter struct {
	next     interact.Reporter
	uploader Uploader
}

var _ interact.Reporter = (*Reporter)(nil)

func NewReporter(next interact.Reporter, uploader Uploader) *Reporter {
	return &Reporter{next: next, uploader: uploader}
}

func (r *Reporter) RecordPass(ctx context.Context, message string, ev *interact.Evidence) {
	r.next.RecordPass(ctx, message, r.upload(ctx, ev))
}

func (r *Reporter) RecordFail(ctx context.Context, message string, ev *interact.Evidence) {
	r.next.RecordFail(ctx, message, r.upload(ctx, ev))
}

func (r *Reporter) upload(ctx context.Context, ev *interact.Evidence) *interact.Evidence {
	if ev == nil || len(ev.PNG) == 0 || ev.URL != "" || r.uploader == nil {
		return ev
	}
	// Uploads outlive the step context.
	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uploadTimeout)
	defer cancel()

	url, err := r.uploader.Put(uploadCtx, obs.RunIDFromContext(ctx), ev.PNG)
	if err != nil {
		obs.From(ctx).Warn("evidence upload failed", "pkg", "evidence", "bytes", len(ev.PNG), "error", err)
		return ev
	}
	obs.From(ctx).Debug("evidence uploaded", "pkg", "evidence", "url", url)
	out := *ev
	out.URL = url
	return &out
}
