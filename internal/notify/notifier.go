// Package notify delivers report-ready notifications. Delivery is
// best-effort and happens only after the caller has won the notification
// claim for the job, so a job is announced at most once.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Config holds notification settings.
type Config struct {
	// WebhookURL receives the report-ready payload. Empty disables
	// notifications entirely.
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ReportReady is the payload posted when a report finishes.
type ReportReady struct {
	Email      string    `json:"email"`
	JobID      string    `json:"job_id"`
	Query      string    `json:"query"`
	PostCount  int       `json:"post_count"`
	TopInsight string    `json:"top_insight,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier sends report-ready notifications.
type Notifier interface {
	// Enabled reports whether notifications are configured at all;
	// callers skip the claim when disabled.
	Enabled() bool

	// NotifyReportReady delivers one notification.
	NotifyReportReady(ctx context.Context, n ReportReady) error
}

// WebhookNotifier posts notifications to a configured webhook URL.
type WebhookNotifier struct {
	cfg    Config
	client *http.Client
}

func NewWebhookNotifier(cfg Config) *WebhookNotifier {
	return &WebhookNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Enabled() bool {
	return w.cfg.WebhookURL != ""
}

func (w *WebhookNotifier) NotifyReportReady(ctx context.Context, n ReportReady) error {
	if !w.Enabled() {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return eris.Wrap(err, "notify: marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	zap.L().Info("notify: report-ready notification sent",
		zap.String("job_id", n.JobID),
		zap.String("email", n.Email),
	)
	return nil
}
