// Package sse streams health events to browsers via Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
)

const clientBuffer = 64

// SSEHandler streams events via Server-Sent Events.
type SSEHandler struct {
	mu      sync.RWMutex
	clients map[chan *events.BaseEvent]struct{}
}

// NewSSEHandler creates a new SSE handler subscribed to the publisher.
func NewSSEHandler(publisher events.EventPublisher) *SSEHandler {
	h := &SSEHandler{
		clients: make(map[chan *events.BaseEvent]struct{}),
	}
	publisher.Subscribe(h.broadcast)
	return h
}

func (h *SSEHandler) broadcast(e *events.BaseEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- e:
		default:
			// slow client, drop
		}
	}
	return nil
}

// Clients returns the number of connected streams.
func (h *SSEHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// message is the data line of each SSE frame.
type message struct {
	Type          string                 `json:"type"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	Timestamp     string                 `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// ServeHTTP handles SSE connections. The optional "types" query parameter
// is a comma-separated list of event types to receive; "job" limits the
// stream to one job.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	typeFilter := make(map[string]bool)
	if types := r.URL.Query().Get("types"); types != "" {
		for _, t := range strings.Split(types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				typeFilter[t] = true
			}
		}
	}
	jobFilter := r.URL.Query().Get("job")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan *events.BaseEvent, clientBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if len(typeFilter) > 0 && !typeFilter[event.Type] {
				continue
			}
			if jobFilter != "" && (event.AggregateType() != events.AggregateTypeJob || event.AggregateID() != jobFilter) {
				continue
			}
			if err := writeEvent(w, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event *events.BaseEvent) error {
	data, err := json.Marshal(message{
		Type:          event.Type,
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		Timestamp:     event.Timestamp.UTC().Format(time.RFC3339),
		Metadata:      event.Metadata,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
	return err
}
