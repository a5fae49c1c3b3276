// Package messaging defines the chat alert adapters that announce job
// health changes.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
)

// Adapter kinds.
const (
	TypeSlack = "slack"
	TypeTeams = "teams"
)

// MessageAdapter sends event notifications to an external channel.
type MessageAdapter interface {
	Send(ctx context.Context, event *events.BaseEvent) error
	Name() string
	Type() string
}

// AdapterConfig defines configuration for a messaging adapter.
type AdapterConfig struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"` // "slack", "teams"
	URL  string `yaml:"url" json:"url"`
	// EventFilters limits the adapter to these event types. Empty means
	// health.changed only; alerts on every evaluation are noise.
	EventFilters []string `yaml:"event_filters,omitempty" json:"event_filters,omitempty"`
	// EscalationsOnly drops health.changed events that are not escalations.
	EscalationsOnly bool `yaml:"escalations_only,omitempty" json:"escalations_only,omitempty"`
	Enabled         bool `yaml:"enabled" json:"enabled"`
}

// Matches reports whether the adapter wants the event.
func (c AdapterConfig) Matches(event *events.BaseEvent) bool {
	filters := c.EventFilters
	if len(filters) == 0 {
		filters = []string{events.EventTypeHealthChanged}
	}
	matched := false
	for _, f := range filters {
		if f == event.Type {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	if c.EscalationsOnly && event.Type == events.EventTypeHealthChanged {
		escalated, _ := event.Metadata["escalated"].(bool)
		return escalated
	}
	return true
}

// Validate checks the adapter's required fields.
func (c AdapterConfig) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	switch c.Type {
	case TypeSlack, TypeTeams:
	default:
		errs = append(errs, fmt.Errorf("unknown type %q (want slack or teams)", c.Type))
	}
	if u, err := url.Parse(c.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, errors.New("url must be http(s)"))
	}
	return errors.Join(errs...)
}

// MessagingConfig holds all configured messaging adapters.
type MessagingConfig struct {
	Adapters []AdapterConfig `yaml:"adapters" json:"adapters"`
}

// Enabled reports whether any adapter is switched on.
func (c MessagingConfig) Enabled() bool {
	for _, a := range c.Adapters {
		if a.Enabled {
			return true
		}
	}
	return false
}
