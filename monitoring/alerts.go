package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Alerter pushes operator-facing alerts for anomalies that need human
// attention, like a payment confirmation arriving after the numbers were
// already released.
type Alerter interface {
	Alert(ctx context.Context, title string, fields map[string]any)
}

// WebhookAlerter posts alerts to a generic incoming-webhook URL. Delivery
// is best-effort; failures are logged and dropped.
type WebhookAlerter struct {
	url        string
	httpClient *http.Client
}

func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{
		url:        url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (a *WebhookAlerter) Alert(ctx context.Context, title string, fields map[string]any) {
	payload := map[string]any{"title": title, "fields": fields, "ts": time.Now().UTC()}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		slog.Error("alert delivery failed", "title", title, "error", err)
		return
	}
	resp.Body.Close()
}

// NopAlerter drops alerts. Used when no alert webhook is configured and in
// tests.
type NopAlerter struct{}

func (NopAlerter) Alert(context.Context, string, map[string]any) {}
