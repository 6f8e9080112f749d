// Package alert provides AlertSink adapters for flagged-transaction
// notifications: an HTTP webhook, a Kafka publisher, and a log sink.
// Delivery is best-effort; a failed notification never affects the
// ledger operation that produced it.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vaibhav071104/vaultguard/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("infra/alert")

// WebhookSink delivers alerts by POSTing to an HTTP endpoint
// (e.g. an email relay), guarded by a circuit breaker.
type WebhookSink struct {
	httpClient *http.Client
	url        string
	apiKey     string
	from       string
	cb         *gobreaker.CircuitBreaker
}

// NewWebhookSink creates a webhook-backed alert sink.
func NewWebhookSink(httpClient *http.Client, url, apiKey, from string, cb *gobreaker.CircuitBreaker) *WebhookSink {
	return &WebhookSink{
		httpClient: httpClient,
		url:        url,
		apiKey:     apiKey,
		from:       from,
		cb:         cb,
	}
}

type webhookPayload struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Notify POSTs the alert as JSON. Non-2xx responses count as failures
// toward the circuit breaker.
func (s *WebhookSink) Notify(ctx context.Context, recipient, subject, body string) error {
	ctx, span := tracer.Start(ctx, "WebhookSink.Notify")
	defer span.End()
	span.SetAttributes(attribute.String("alert.recipient", recipient))

	_, err := s.cb.Execute(func() (any, error) {
		payload, err := json.Marshal(webhookPayload{
			To:      recipient,
			From:    s.from,
			Subject: subject,
			Body:    body,
		})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}

var _ port.AlertSink = (*WebhookSink)(nil)
