package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
)

func healthChanged() *events.BaseEvent {
	return events.NewEvent(events.EventTypeHealthChanged, events.AggregateTypeJob, "J-100", map[string]interface{}{
		"from_health": "good",
		"to_health":   "critical",
	})
}

func TestNotifier_DeliverySuccess(t *testing.T) {
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ep := events.WebhookEndpoint{Name: "ops", URL: server.URL, Enabled: true}
	n := NewNotifier([]events.WebhookEndpoint{ep}, nil, nil)
	n.Notify(context.Background(), healthChanged())
	n.Wait()

	if received.Load() != 1 {
		t.Errorf("expected 1 delivery, got %d", received.Load())
	}
}

func TestNotifier_DisabledEndpointSkipped(t *testing.T) {
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
	}))
	defer server.Close()

	ep := events.WebhookEndpoint{Name: "off", URL: server.URL, Enabled: false}
	n := NewNotifier([]events.WebhookEndpoint{ep}, nil, nil)
	n.Notify(context.Background(), healthChanged())
	n.Wait()

	if received.Load() != 0 {
		t.Errorf("expected no delivery, got %d", received.Load())
	}
}

func TestNotifier_Headers(t *testing.T) {
	secret := "test-secret"
	var (
		mu      sync.Mutex
		headers http.Header
		body    []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		headers = r.Header.Clone()
		body = b
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ep := events.WebhookEndpoint{Name: "signed", URL: server.URL, Secret: secret, Enabled: true}
	n := NewNotifier([]events.WebhookEndpoint{ep}, nil, nil)
	n.Notify(context.Background(), healthChanged())
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got := headers.Get(SignatureHeader); got != Sign(body, secret) {
		t.Errorf("signature: want %s, got %s", Sign(body, secret), got)
	}
	if got := headers.Get(EventHeader); got != events.EventTypeHealthChanged {
		t.Errorf("event header: want %s, got %s", events.EventTypeHealthChanged, got)
	}
	if got := headers.Get("User-Agent"); got != "SitePulse-Webhook/1.0" {
		t.Errorf("user agent: got %s", got)
	}
}

func TestSign(t *testing.T) {
	want := "sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got := Sign([]byte("The quick brown fox jumps over the lazy dog"), "key"); got != want {
		t.Errorf("Sign: want %s, got %s", want, got)
	}
}

func TestNotifier_RetryAndDeadLetter(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dlStore := NewDeadLetterStore(filepath.Join(t.TempDir(), "deadletters.jsonl"))
	ep := events.WebhookEndpoint{
		Name:       "flaky",
		URL:        server.URL,
		Enabled:    true,
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	}

	n := NewNotifier([]events.WebhookEndpoint{ep}, dlStore, nil)
	n.Notify(context.Background(), healthChanged())
	n.Wait()

	if attempts.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts.Load())
	}

	entries, err := dlStore.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(entries))
	}
	dl := entries[0]
	if dl.WebhookName != "flaky" || dl.EventType != events.EventTypeHealthChanged || dl.Attempts != 2 {
		t.Errorf("dead letter: got %+v", dl)
	}
	if dl.Error != "webhook returned status 500" {
		t.Errorf("error: got %q", dl.Error)
	}
}

func TestNotifier_RecoversBeforeDeadLetter(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dlStore := NewDeadLetterStore(filepath.Join(t.TempDir(), "deadletters.jsonl"))
	ep := events.WebhookEndpoint{Name: "x", URL: server.URL, Enabled: true, MaxRetries: 3, RetryDelay: 5 * time.Millisecond}
	n := NewNotifier([]events.WebhookEndpoint{ep}, dlStore, nil)
	n.Notify(context.Background(), healthChanged())
	n.Wait()

	if attempts.Load() != 2 {
		t.Errorf("attempts: want 2, got %d", attempts.Load())
	}
	if entries, _ := dlStore.ReadAll(); len(entries) != 0 {
		t.Errorf("expected no dead letters, got %d", len(entries))
	}
}

func TestNotifier_CancelledContextStopsRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dlStore := NewDeadLetterStore(filepath.Join(t.TempDir(), "deadletters.jsonl"))
	ep := events.WebhookEndpoint{Name: "slow", URL: server.URL, Enabled: true, MaxRetries: 5, RetryDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	n := NewNotifier([]events.WebhookEndpoint{ep}, dlStore, nil)
	n.Notify(ctx, healthChanged())
	time.Sleep(100 * time.Millisecond)
	cancel()
	n.Wait()

	if attempts.Load() != 1 {
		t.Errorf("attempts: want 1, got %d", attempts.Load())
	}
	entries, _ := dlStore.ReadAll()
	if len(entries) != 1 || entries[0].Error != context.Canceled.Error() {
		t.Errorf("expected one cancelled dead letter, got %+v", entries)
	}
}

func TestNotifier_EventFilter(t *testing.T) {
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ep := events.WebhookEndpoint{
		Name:         "changes",
		URL:          server.URL,
		Enabled:      true,
		EventFilters: []string{events.EventTypeHealthChanged},
	}
	n := NewNotifier([]events.WebhookEndpoint{ep}, nil, nil)

	n.Notify(context.Background(), events.NewEvent(events.EventTypeHealthEvaluated, events.AggregateTypeJob, "J-1", nil))
	n.Wait()
	if received.Load() != 0 {
		t.Errorf("expected 0 deliveries for filtered event, got %d", received.Load())
	}

	n.Notify(context.Background(), healthChanged())
	n.Wait()
	if received.Load() != 1 {
		t.Errorf("expected 1 delivery for matching event, got %d", received.Load())
	}
}

func TestNotifier_HandlerPayload(t *testing.T) {
	var (
		mu      sync.Mutex
		payload Payload
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		_ = json.Unmarshal(body, &payload)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ep := events.WebhookEndpoint{Name: "all", URL: server.URL, Enabled: true}
	n := NewNotifier([]events.WebhookEndpoint{ep}, nil, nil)
	if err := n.Handler(context.Background())(healthChanged()); err != nil {
		t.Fatal(err)
	}
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	if payload.EventType != events.EventTypeHealthChanged {
		t.Errorf("event_type: want %s, got %s", events.EventTypeHealthChanged, payload.EventType)
	}
	if payload.Data == nil || payload.Data.AggregateID_ != "J-100" {
		t.Fatalf("data: got %+v", payload.Data)
	}
	if payload.Data.Metadata["to_health"] != "critical" {
		t.Errorf("metadata: got %v", payload.Data.Metadata)
	}
}
