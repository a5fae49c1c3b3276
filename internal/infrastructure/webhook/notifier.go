// Package webhook delivers health events to configured HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
)

// Delivery headers.
const (
	SignatureHeader = "X-SitePulse-Signature"
	EventHeader     = "X-SitePulse-Event"
	userAgent       = "SitePulse-Webhook/1.0"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

// Notifier sends outgoing webhook notifications for domain events.
type Notifier struct {
	endpoints  []events.WebhookEndpoint
	client     *http.Client
	deadLetter *DeadLetterStore
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewNotifier creates a notifier with the given endpoints and dead letter
// store. deadLetter may be nil.
func NewNotifier(endpoints []events.WebhookEndpoint, deadLetter *DeadLetterStore, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		endpoints: endpoints,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		deadLetter: deadLetter,
		logger:     logger,
	}
}

// Payload is the JSON body sent to webhook endpoints.
type Payload struct {
	EventType string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Data      *events.BaseEvent `json:"data"`
}

// Handler adapts the notifier to an events.EventPublisher subscription.
// Deliveries run in the background against ctx.
func (n *Notifier) Handler(ctx context.Context) events.EventHandler {
	return func(event *events.BaseEvent) error {
		n.Notify(ctx, event)
		return nil
	}
}

// Notify sends an event to all matching enabled endpoints. Each delivery
// runs in its own goroutine; use Wait to block until they finish.
func (n *Notifier) Notify(ctx context.Context, event *events.BaseEvent) {
	body, err := json.Marshal(Payload{
		EventType: event.Type,
		Timestamp: event.Timestamp,
		Data:      event,
	})
	if err != nil {
		n.logger.Error("marshal webhook payload", "event_type", event.Type, "error", err)
		return
	}

	for _, ep := range n.endpoints {
		if !ep.Enabled || !ep.Matches(event.Type) {
			continue
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.deliver(ctx, ep, event.Type, body)
		}()
	}
}

// Wait blocks until all in-flight deliveries have completed.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, ep events.WebhookEndpoint, eventType string, body []byte) {
	maxRetries := ep.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryDelay := ep.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= maxRetries; attempt++ {
		attempts = attempt
		lastErr = n.send(ctx, ep, eventType, body)
		if lastErr == nil {
			n.logger.Debug("webhook delivered", "webhook", ep.Name, "event_type", eventType, "attempt", attempt)
			return
		}
		if attempt == maxRetries {
			break
		}
		// linear backoff
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(retryDelay * time.Duration(attempt)):
			continue
		}
		break
	}

	n.logger.Warn("webhook delivery failed", "webhook", ep.Name, "event_type", eventType, "attempts", attempts, "error", lastErr)
	if n.deadLetter == nil {
		return
	}
	dl := events.DeadLetter{
		Timestamp:   time.Now().UTC(),
		WebhookName: ep.Name,
		URL:         ep.URL,
		EventType:   eventType,
		Payload:     string(body),
		Error:       lastErr.Error(),
		Attempts:    attempts,
	}
	if err := n.deadLetter.Append(dl); err != nil {
		n.logger.Error("write dead letter", "webhook", ep.Name, "error", err)
	}
}

func (n *Notifier) send(ctx context.Context, ep events.WebhookEndpoint, eventType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(EventHeader, eventType)
	if ep.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, ep.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the HMAC-SHA256 signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
