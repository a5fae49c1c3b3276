// Package inbound receives change notifications from the systems that own
// the financial feeds, so a job can be re-assessed as soon as its data
// moves instead of waiting for the next refresh.
package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const maxRecent = 100

// Event is a parsed change notification.
type Event struct {
	Provider  string    `json:"provider"`
	EventType string    `json:"event_type"`
	JobID     string    `json:"job_id"`
	Feed      string    `json:"feed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler parses notifications from one provider.
type Handler interface {
	// Provider returns the path segment the handler is mounted under.
	Provider() string

	// ValidateSignature checks the request against the shared secret.
	ValidateSignature(r *http.Request, secret string) bool

	// ParseEvent parses the HTTP request into an Event.
	ParseEvent(r *http.Request) (*Event, error)
}

// EventProcessor acts on parsed notifications.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, event *Event) error
}

// Receiver routes POST /hooks/{provider} to the registered handlers and
// keeps the last notifications for GET /hooks/recent.
type Receiver struct {
	handlers  map[string]Handler
	secrets   map[string]string // provider -> secret
	processor EventProcessor
	logger    *slog.Logger
	mu        sync.RWMutex
	events    []Event
}

// NewReceiver creates a receiver that hands parsed events to processor.
func NewReceiver(processor EventProcessor, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		handlers:  make(map[string]Handler),
		secrets:   make(map[string]string),
		processor: processor,
		logger:    logger,
		events:    make([]Event, 0, maxRecent),
	}
}

// RegisterHandler adds a handler for its provider.
func (s *Receiver) RegisterHandler(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[handler.Provider()] = handler
}

// SetSecret sets the shared secret for a provider. Requests to a provider
// without a secret are accepted unsigned.
func (s *Receiver) SetSecret(provider, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[provider] = secret
}

// Routes returns the handler to mount under /hooks/.
func (s *Receiver) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /hooks/recent", s.handleRecent)
	mux.HandleFunc("/hooks/{provider}", s.handleWebhook)
	return mux
}

func (s *Receiver) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[provider]
	secret := s.secrets[provider]
	s.mu.RUnlock()

	if !ok {
		http.Error(w, fmt.Sprintf("No handler registered for %s", provider), http.StatusNotFound)
		return
	}

	if secret != "" && !handler.ValidateSignature(r, secret) {
		s.logger.Warn("inbound webhook signature rejected", "provider", provider)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := handler.ParseEvent(r)
	if err != nil {
		s.logger.Warn("inbound webhook unparseable", "provider", provider, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.storeEvent(event)

	if s.processor != nil {
		if err := s.processor.ProcessEvent(r.Context(), event); err != nil {
			s.logger.Error("inbound webhook processing failed", "provider", provider, "job_id", event.JobID, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	s.logger.Info("inbound webhook processed", "provider", provider, "type", event.EventType, "job_id", event.JobID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Receiver) handleRecent(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.RecentEvents())
}

func (s *Receiver) storeEvent(event *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= maxRecent {
		s.events = s.events[1:]
	}
	s.events = append(s.events, *event)
}

// RecentEvents returns the most recent notifications, oldest first.
func (s *Receiver) RecentEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]Event, len(s.events))
	copy(events, s.events)
	return events
}
