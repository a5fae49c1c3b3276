package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/config"
	"github.com/felixgeelhaar/sitepulse/pkg/application"
	"github.com/felixgeelhaar/sitepulse/pkg/feeds"
	"github.com/felixgeelhaar/sitepulse/pkg/plugin"
	"github.com/felixgeelhaar/sitepulse/pkg/storage"
)

// AppServices exposes the application services wired to a workspace.
type AppServices struct {
	Workspace *Workspace
	Source    feeds.Source
	History   *storage.HistoryStore // nil when history is disabled
	Health    *application.HealthService
	Portfolio *application.PortfolioService

	closers []func() error
}

// BuildAppServices constructs the feed source, history store and services
// for the workspace at root. Call Close when done.
func BuildAppServices(ctx context.Context, root string, cfg *config.Config, logger *slog.Logger) (*AppServices, error) {
	if logger == nil {
		logger = slog.Default()
	}
	workspace := NewWorkspace(ctx, root, cfg, logger)
	services := &AppServices{Workspace: workspace}

	source, closeSource, err := BuildSource(root, cfg, logger)
	if err != nil {
		return nil, err
	}
	services.Source = source
	if closeSource != nil {
		services.closers = append(services.closers, closeSource)
	}

	var history application.HistoryRepository
	if cfg.History.Enabled {
		path, err := workspace.Repo.ResolvePath(cfg.History.File)
		if err != nil {
			_ = services.Close()
			return nil, fmt.Errorf("history file: %w", err)
		}
		store, err := storage.OpenHistory(path)
		if err != nil {
			_ = services.Close()
			return nil, err
		}
		services.History = store
		services.closers = append(services.closers, store.Close)
		history = store

		if cfg.History.Retention > 0 {
			cutoff := time.Now().Add(-cfg.History.Retention)
			if n, err := store.Prune(ctx, cutoff); err != nil {
				logger.Warn("history prune failed", "error", err)
			} else if n > 0 {
				logger.Debug("history pruned", "snapshots", n, "cutoff", cutoff)
			}
		}
	}

	services.Health = application.NewHealthService(source, history, workspace.Publisher, logger)
	services.Portfolio = application.NewPortfolioService(services.Health, workspace.Publisher,
		cfg.Portfolio.Concurrency, cfg.Portfolio.Statuses, logger)
	return services, nil
}

// BuildSource creates the feed source selected by cfg.Source. The returned
// close function is nil when the source holds no resources.
func BuildSource(root string, cfg *config.Config, logger *slog.Logger) (feeds.Source, func() error, error) {
	switch cfg.Source {
	case config.SourceAPI:
		client, err := feeds.NewClient(cfg.API.BaseURL,
			feeds.WithToken(cfg.API.Token()),
			feeds.WithTimeout(cfg.API.Timeout),
			feeds.WithRetry(cfg.API.MaxAttempts, cfg.API.InitialDelay),
			feeds.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("feed api client: %w", err)
		}
		return client, nil, nil

	case config.SourceFile:
		return feeds.NewFileSource(ResolveDir(root, cfg.File.Dir)), nil, nil

	case config.SourcePlugin:
		loader := plugin.NewLoader()
		pcfg := cfg.Plugin
		pcfg.Binary = ResolveDir(root, pcfg.Binary)
		impl, err := loader.Load(pcfg)
		if err != nil {
			loader.Cleanup()
			return nil, nil, fmt.Errorf("feed plugin: %w", err)
		}
		return plugin.NewSource(impl), func() error {
			loader.Cleanup()
			return nil
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown feed source %q", cfg.Source)
	}
}

// ResolveDir makes a config path absolute relative to the workspace root.
func ResolveDir(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Close waits for in-flight webhook deliveries and releases the plugin
// process and history database.
func (s *AppServices) Close() error {
	if s.Workspace != nil && s.Workspace.Notifier != nil {
		s.Workspace.Notifier.Wait()
	}
	if s.Workspace != nil && s.Workspace.Alerts != nil {
		s.Workspace.Alerts.Wait()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
