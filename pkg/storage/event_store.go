package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
	"github.com/google/uuid"
)

// FileEventStore keeps published events in a JSON Lines file.
type FileEventStore struct {
	mu   sync.RWMutex
	path string
}

// NewFileEventStore creates a store writing to dir/events.jsonl. The
// directory is created on first write.
func NewFileEventStore(dir string) *FileEventStore {
	return &FileEventStore{path: filepath.Join(dir, EventsFile)}
}

// Append adds a new event to the store.
func (s *FileEventStore) Append(event *events.BaseEvent) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close events file: %w", cerr)
		}
	}()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// LoadAll returns all events in the order they were appended.
func (s *FileEventStore) LoadAll() ([]*events.BaseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadEvents()
}

// LoadByAggregate returns events for a specific aggregate.
func (s *FileEventStore) LoadByAggregate(aggregateType, aggregateID string) ([]*events.BaseEvent, error) {
	return s.filter(func(e *events.BaseEvent) bool {
		return e.AggregateType_ == aggregateType && e.AggregateID_ == aggregateID
	})
}

// LoadByType returns events of a specific type.
func (s *FileEventStore) LoadByType(eventType string) ([]*events.BaseEvent, error) {
	return s.filter(func(e *events.BaseEvent) bool { return e.Type == eventType })
}

// LoadSince returns events that occurred after the given timestamp.
func (s *FileEventStore) LoadSince(since time.Time) ([]*events.BaseEvent, error) {
	return s.filter(func(e *events.BaseEvent) bool { return e.Timestamp.After(since) })
}

func (s *FileEventStore) filter(keep func(*events.BaseEvent) bool) ([]*events.BaseEvent, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}

	var result []*events.BaseEvent
	for _, e := range all {
		if keep(e) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *FileEventStore) loadEvents() ([]*events.BaseEvent, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	var result []*events.BaseEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event events.BaseEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		result = append(result, &event)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return result, nil
}

// InMemoryEventPublisher is a simple in-process event publisher.
type InMemoryEventPublisher struct {
	mu       sync.RWMutex
	handlers []events.EventHandler
	logger   *slog.Logger
}

// NewInMemoryEventPublisher creates a new in-memory publisher. Handler
// errors are logged to logger, or slog.Default() when nil.
func NewInMemoryEventPublisher(logger *slog.Logger) *InMemoryEventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventPublisher{
		handlers: make([]events.EventHandler, 0),
		logger:   logger,
	}
}

// Publish sends an event to all subscribers. A failing handler does not stop
// delivery to the others.
func (p *InMemoryEventPublisher) Publish(event *events.BaseEvent) error {
	p.mu.RLock()
	handlers := make([]events.EventHandler, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.RUnlock()

	for _, h := range handlers {
		if err := h(event); err != nil {
			p.logger.Warn("event handler failed", "event_type", event.Type, "event_id", event.ID, "error", err)
		}
	}
	return nil
}

// Subscribe registers a handler for events.
func (p *InMemoryEventPublisher) Subscribe(handler events.EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler)
}
