package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/watch"
)

const reloadDebounce = 300 * time.Millisecond

// Watch reloads the config file at path whenever it changes and hands the
// new value to onChange. A file that fails to load or validate is logged and
// skipped; the caller keeps its previous config. Watch blocks until ctx ends.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := watch.NewFSWatcher(reloadDebounce, []string{filepath.Base(path)}, func(e watch.ChangeEvent) {
		if e.ChangeType == "remove" {
			logger.Warn("config file removed, keeping current config", "path", path)
			return
		}
		cfg, err := LoadFile(path)
		if err != nil {
			logger.Error("config reload failed, keeping current config", "path", path, "error", err)
			return
		}
		logger.Info("config reloaded", "path", path)
		onChange(cfg)
	}, logger)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return err
	}
	return w.Run(ctx)
}
