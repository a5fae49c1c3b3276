package webhook

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
)

// DeadLetterStore appends failed webhook deliveries to a JSONL file.
type DeadLetterStore struct {
	path string
	mu   sync.Mutex
}

// NewDeadLetterStore creates a dead letter store at the given path.
func NewDeadLetterStore(path string) *DeadLetterStore {
	return &DeadLetterStore{path: path}
}

// Path returns the backing file.
func (s *DeadLetterStore) Path() string { return s.path }

// Append writes a dead letter entry.
func (s *DeadLetterStore) Append(dl events.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open dead letter file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write dead letter: %w", err)
	}
	return nil
}

// ReadAll returns every readable entry, oldest first. Corrupt lines are
// skipped. A missing file yields no entries.
func (s *DeadLetterStore) ReadAll() ([]events.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open dead letter file: %w", err)
	}
	defer f.Close()

	var entries []events.DeadLetter
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var dl events.DeadLetter
		if err := json.Unmarshal(line, &dl); err != nil {
			continue
		}
		entries = append(entries, dl)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dead letter file: %w", err)
	}
	return entries, nil
}

// Clear removes all entries.
func (s *DeadLetterStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear dead letters: %w", err)
	}
	return nil
}
