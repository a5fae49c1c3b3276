package wiring

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/config"
	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/messaging"
	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
	"github.com/felixgeelhaar/sitepulse/pkg/storage"
)

// Workspace bundles the .sitepulse directory and the event plumbing around it.
type Workspace struct {
	Repo        *storage.FilesystemRepository
	Config      *config.Config
	Events      *storage.FileEventStore
	Publisher   *storage.InMemoryEventPublisher
	DeadLetters *webhook.DeadLetterStore
	Notifier    *webhook.Notifier
	Alerts      *messaging.Registry
}

// NewWorkspace wires the event log and webhook notifier for root. Every
// published event is appended to the event log; enabled webhooks receive
// the events they subscribe to and enabled chat adapters get health alerts.
// Deliveries run against ctx.
func NewWorkspace(ctx context.Context, root string, cfg *config.Config, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	repo := storage.NewFilesystemRepository(root)
	store := storage.NewFileEventStore(repo.Dir())
	publisher := storage.NewInMemoryEventPublisher(logger)
	publisher.Subscribe(store.Append)

	dlStore := webhook.NewDeadLetterStore(filepath.Join(repo.Dir(), storage.DeadLetterFile))

	var notifier *webhook.Notifier
	if hasEnabled(cfg.Webhooks) {
		notifier = webhook.NewNotifier(cfg.Webhooks, dlStore, logger)
		publisher.Subscribe(notifier.Handler(ctx))
	}

	var alerts *messaging.Registry
	if cfg.Messaging.Enabled() {
		registry, err := messaging.NewRegistry(&cfg.Messaging, logger)
		if err != nil {
			logger.Error("chat alerts disabled", "error", err)
		} else {
			alerts = registry
			publisher.Subscribe(registry.Handler(ctx))
		}
	}

	return &Workspace{
		Repo:        repo,
		Config:      cfg,
		Events:      store,
		Publisher:   publisher,
		DeadLetters: dlStore,
		Notifier:    notifier,
		Alerts:      alerts,
	}
}

func hasEnabled(endpoints []events.WebhookEndpoint) bool {
	for _, ep := range endpoints {
		if ep.Enabled {
			return true
		}
	}
	return false
}
