package messaging

import (
	"context"
	"net/http"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/messaging"
)

// TeamsAdapter sends events to a Microsoft Teams incoming webhook.
type TeamsAdapter struct {
	config messaging.AdapterConfig
	client *http.Client
}

// NewTeamsAdapter creates a Teams adapter from config.
func NewTeamsAdapter(config messaging.AdapterConfig) *TeamsAdapter {
	return &TeamsAdapter{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *TeamsAdapter) Name() string { return a.config.Name }
func (a *TeamsAdapter) Type() string { return messaging.TypeTeams }

func (a *TeamsAdapter) Send(ctx context.Context, event *events.BaseEvent) error {
	return postJSON(ctx, a.client, a.config.URL, map[string]string{
		"text": formatMessage(event, false),
	})
}
