package wiring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/config"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/messaging"
)

func TestNewWorkspace_PersistsEvents(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(context.Background(), root, config.Default(), nil)

	e := events.NewEvent(events.EventTypeHealthChanged, events.AggregateTypeJob, "J-1", nil)
	if err := ws.Publisher.Publish(e); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	all, err := ws.Events.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 1 || all[0].ID != e.ID {
		t.Errorf("events: want [%s], got %v", e.ID, all)
	}
}

func TestNewWorkspace_Webhooks(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Webhooks = []events.WebhookEndpoint{
		{Name: "ops", URL: srv.URL, Enabled: true, EventFilters: []string{events.EventTypeHealthChanged}},
	}
	ws := NewWorkspace(context.Background(), t.TempDir(), cfg, nil)
	if ws.Notifier == nil {
		t.Fatal("expected notifier for enabled webhook")
	}

	_ = ws.Publisher.Publish(events.NewEvent(events.EventTypeHealthEvaluated, events.AggregateTypeJob, "J-1", nil))
	_ = ws.Publisher.Publish(events.NewEvent(events.EventTypeHealthChanged, events.AggregateTypeJob, "J-1", nil))
	ws.Notifier.Wait()

	if got := hits.Load(); got != 1 {
		t.Errorf("deliveries: want 1, got %d", got)
	}
}

func TestNewWorkspace_DisabledWebhooks(t *testing.T) {
	cfg := config.Default()
	cfg.Webhooks = []events.WebhookEndpoint{{Name: "off", URL: "http://127.0.0.1:1", Enabled: false}}

	ws := NewWorkspace(context.Background(), t.TempDir(), cfg, nil)
	if ws.Notifier != nil {
		t.Error("expected no notifier when every webhook is disabled")
	}
}

func TestNewWorkspace_ChatAlerts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Messaging = messaging.MessagingConfig{Adapters: []messaging.AdapterConfig{
		{Name: "site-leads", Type: messaging.TypeSlack, URL: srv.URL, Enabled: true},
	}}
	ws := NewWorkspace(context.Background(), t.TempDir(), cfg, nil)
	if ws.Alerts == nil {
		t.Fatal("expected alert registry for enabled adapter")
	}

	_ = ws.Publisher.Publish(events.NewEvent(events.EventTypeHealthEvaluated, events.AggregateTypeJob, "J-1", nil))
	_ = ws.Publisher.Publish(events.NewEvent(events.EventTypeHealthChanged, events.AggregateTypeJob, "J-1", map[string]interface{}{"escalated": true}))
	ws.Alerts.Wait()

	if got := hits.Load(); got != 1 {
		t.Errorf("alerts: want 1, got %d", got)
	}
}
