package internal

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// WebhookPayload is the outbound notification shape named in §6, emitted
// once per successful enrichment so downstream systems can react to newly
// discovered fields without polling.
type WebhookPayload struct {
	EntityType      string   `json:"entity_type"`
	Key             string   `json:"key"`
	SourceProviders []string `json:"source_providers"`
	FieldsAdded     []string `json:"fields_added"`
}

// WebhookNotifier delivers WebhookPayload bodies to a single configured
// endpoint, signing each body with an HMAC-SHA256 digest the receiver can
// verify. Construction mirrors the teacher's NewUpstream: a rate-limited
// http.Client built on throttledTransport over http.DefaultTransport, with
// no host scoping.
type WebhookNotifier struct {
	endpoint string
	secret   []byte
	client   *http.Client
}

// NewWebhookNotifier builds a notifier for endpoint, signing bodies with
// secret. If endpoint is empty, NotifyAsync is a no-op (webhooks are
// optional per §6).
func NewWebhookNotifier(endpoint, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		endpoint: endpoint,
		secret:   []byte(secret),
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: throttledTransport{
				Limiter:      rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
				RoundTripper: http.DefaultTransport,
			},
		},
	}
}

// NotifyAsync fires the webhook in the background. Delivery failures are
// logged but never propagated: a webhook subscriber's outage must not fail
// or retry the enrichment that triggered it (§6).
func (w *WebhookNotifier) NotifyAsync(ctx context.Context, payload WebhookPayload) {
	if w == nil || w.endpoint == "" {
		return
	}
	go func() {
		if err := w.deliver(context.WithoutCancel(ctx), payload); err != nil {
			Log(ctx).Warn("webhook delivery failed", "entity_type", payload.EntityType, "key", payload.Key, "err", err)
		}
	}()
}

func (w *WebhookNotifier) deliver(ctx context.Context, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(w.secret) > 0 {
		req.Header.Set("X-Alexandria-Signature", signBody(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return TransientError("webhook endpoint rejected delivery", http.StatusText(resp.StatusCode))
	}
	return nil
}

func signBody(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
