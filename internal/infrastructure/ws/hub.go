// Package ws pushes the latest portfolio report to websocket clients.
//
// A Hub sends the current report as soon as a client connects, then again
// on every broadcast tick and whenever a portfolio refresh is published.
// Messages are JSON envelopes:
//
//	{"event": "portfolio", "data": { /* same schema as GET /api/portfolio */ }}
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/application"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod  = (pongWait * 9) / 10
	sendBufSize = 16
)

// EventPortfolio is the envelope event name for portfolio pushes.
const EventPortfolio = "portfolio"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ReportSource supplies the report to broadcast. Latest returns nil while no
// report exists yet.
type ReportSource interface {
	Latest() *application.PortfolioReport
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string                       `json:"event"`
	Data  *application.PortfolioReport `json:"data"`
}

// Hub manages websocket clients and broadcasts the latest report to all of
// them every interval.
type Hub struct {
	source   ReportSource
	interval time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that reads from source and broadcasts every interval.
func New(source ReportSource, interval time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		source:   source,
		interval: interval,
		logger:   logger,
		clients:  make(map[*client]struct{}),
	}
}

// Run broadcasts on every tick until ctx is cancelled, then closes all
// connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.Broadcast()
		}
	}
}

// Handler returns an event handler that broadcasts right after each
// portfolio refresh.
func (h *Hub) Handler() events.EventHandler {
	return func(e *events.BaseEvent) error {
		if e.Type == events.EventTypePortfolioRefreshed {
			h.Broadcast()
		}
		return nil
	}
}

// ServeHTTP upgrades the connection and serves the client until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.unregister(c)

	if data, ok := h.buildMessage(); ok {
		select {
		case c.send <- data:
		default:
		}
	}

	go c.writePump()
	c.readPump()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends the latest report to every client. Clients whose buffer
// is full are disconnected.
func (h *Hub) Broadcast() {
	data, ok := h.buildMessage()
	if !ok {
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("websocket client too slow, disconnecting")
			h.unregister(c)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) buildMessage() ([]byte, bool) {
	report := h.source.Latest()
	if report == nil {
		return nil, false
	}
	data, err := json.Marshal(Message{Event: EventPortfolio, Data: report})
	if err != nil {
		h.logger.Error("marshal portfolio message", "error", err)
		return nil, false
	}
	return data, true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles control frames and detects disconnects.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
