package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/messaging"
)

type route struct {
	config  messaging.AdapterConfig
	adapter messaging.MessageAdapter
}

// Registry creates messaging adapters from configuration and fans events
// out to them.
type Registry struct {
	routes []route
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRegistry creates adapters from a MessagingConfig. Disabled adapters are
// skipped.
func NewRegistry(config *messaging.MessagingConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config == nil {
		return &Registry{logger: logger}, nil
	}

	var routes []route
	for _, cfg := range config.Adapters {
		if !cfg.Enabled {
			continue
		}

		adapter, err := createAdapter(cfg)
		if err != nil {
			return nil, fmt.Errorf("create adapter %q: %w", cfg.Name, err)
		}
		routes = append(routes, route{config: cfg, adapter: adapter})
	}

	return &Registry{routes: routes, logger: logger}, nil
}

// Adapters returns all active adapters.
func (r *Registry) Adapters() []messaging.MessageAdapter {
	out := make([]messaging.MessageAdapter, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt.adapter)
	}
	return out
}

// Dispatch sends event to every adapter whose filters match. Failures are
// logged; one broken channel does not stop the others.
func (r *Registry) Dispatch(ctx context.Context, event *events.BaseEvent) int {
	sent := 0
	for _, rt := range r.routes {
		if !rt.config.Matches(event) {
			continue
		}
		if err := rt.adapter.Send(ctx, event); err != nil {
			r.logger.Warn("chat alert failed",
				"adapter", rt.adapter.Name(), "type", rt.adapter.Type(), "event", event.Type, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Handler adapts the registry to an events.EventPublisher subscription.
// Sends run in the background against ctx; use Wait to drain them.
func (r *Registry) Handler(ctx context.Context) events.EventHandler {
	return func(event *events.BaseEvent) error {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.Dispatch(ctx, event)
		}()
		return nil
	}
}

// Wait blocks until background sends finish.
func (r *Registry) Wait() {
	r.wg.Wait()
}

func createAdapter(cfg messaging.AdapterConfig) (messaging.MessageAdapter, error) {
	switch cfg.Type {
	case messaging.TypeSlack:
		return NewSlackAdapter(cfg), nil
	case messaging.TypeTeams:
		return NewTeamsAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown adapter type: %s", cfg.Type)
	}
}
