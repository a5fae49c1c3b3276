package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/config"
	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/sitepulse/pkg/storage"
)

// appEnv is everything a command needs to talk to the workspace.
type appEnv struct {
	root     string
	repo     *storage.FilesystemRepository
	cfg      *config.Config
	logger   *slog.Logger
	services *wiring.AppServices

	closeLog func() error
}

// Close flushes webhook deliveries and releases stores and the log file.
func (e *appEnv) Close() {
	if e.services != nil {
		if err := e.services.Close(); err != nil {
			e.logger.Warn("close services", "error", err)
		}
	}
	if e.closeLog != nil {
		_ = e.closeLog()
	}
}

func getProjectRoot() (string, error) {
	if projectPath != "" {
		abs, err := filepath.Abs(projectPath)
		if err != nil {
			return "", fmt.Errorf("invalid project path %q: %w", projectPath, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("project path %q: %w", abs, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("project path %q is not a directory", abs)
		}
		return abs, nil
	}
	return os.Getwd()
}

// loadConfig reads the workspace config and builds the process logger.
func loadConfig() (*appEnv, error) {
	root, err := getProjectRoot()
	if err != nil {
		return nil, err
	}
	repo := storage.NewFilesystemRepository(root)
	if !repo.IsInitialized() {
		return nil, MapError(storage.ErrNotInitialized)
	}
	cfg, err := config.Load(repo)
	if err != nil {
		return nil, err
	}
	logger, closeLog := config.SetupLogger(cfg.Logging, cfg.Level())
	return &appEnv{root: root, repo: repo, cfg: cfg, logger: logger, closeLog: closeLog}, nil
}

// loadServices loads the config and wires the application services.
func loadServices(ctx context.Context) (*appEnv, error) {
	env, err := loadConfig()
	if err != nil {
		return nil, err
	}
	services, err := wiring.BuildAppServices(ctx, env.root, env.cfg, env.logger)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to build services: %w", err)
	}
	env.services = services
	return env, nil
}
