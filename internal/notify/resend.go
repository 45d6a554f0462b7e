package notify

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"

	"github.com/kuitang/webact/internal/interact"
	"github.com/kuitang/webact/internal/obs"
	"github.com/kuitang/webact/internal/report"
)

// ResendNotifier e-mails failure summaries through the Resend API.
type ResendNotifier struct {
	client      *resend.Client
	fromAddress string
	to          []string
}

// NewResendNotifier creates a notifier. fromAddress must be verified in Resend.
func NewResendNotifier(apiKey, fromAddress string, to []string) *ResendNotifier {
	return &ResendNotifier{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
		to:          to,
	}
}

func (r *ResendNotifier) NotifyFailure(ctx context.Context, s Summary) error {
	body, err := renderSummaryHTML(s)
	if err != nil {
		return err
	}
	sent, err := r.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      r.to,
		Subject: s.Subject(),
		Html:    body,
	})
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	obs.From(ctx).Info("failure summary sent", "pkg", "notify", "email_id", sent.Id, "recipients", len(r.to))
	return nil
}

// renderSummaryHTML renders the failed entries as a run report. Screenshots are linked
// when stored remotely and otherwise left out to keep the message small.
func renderSummaryHTML(s Summary) (string, error) {
	failures := make([]report.Entry, len(s.Failures))
	for i, e := range s.Failures {
		if e.Evidence != nil {
			if e.Evidence.URL == "" {
				e.Evidence = nil
			} else {
				e.Evidence = &interact.Evidence{URL: e.Evidence.URL}
			}
		}
		failures[i] = e
	}
	page, err := report.RenderHTML(s.Subject(), failures)
	if err != nil {
		return "", err
	}
	return string(page), nil
}
