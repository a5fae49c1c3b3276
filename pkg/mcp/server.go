// Package mcp embeds the SitePulse MCP server in other Go programs.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/config"
	infra "github.com/felixgeelhaar/sitepulse/internal/infrastructure/mcp"
	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/sitepulse/pkg/storage"
)

// Server is an MCP server bound to one SitePulse workspace.
type Server struct {
	*infra.Server
	services *wiring.AppServices
}

// NewServer loads the workspace at root and registers the SitePulse tools
// against its feed source and history. A nil logger uses slog.Default.
func NewServer(ctx context.Context, root string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	repo := storage.NewFilesystemRepository(root)
	if !repo.IsInitialized() {
		return nil, storage.ErrNotInitialized
	}
	cfg, err := config.Load(repo)
	if err != nil {
		return nil, err
	}
	services, err := wiring.BuildAppServices(ctx, root, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build services: %w", err)
	}
	return &Server{
		Server:   infra.NewServer(services.Health, services.Portfolio, logger),
		services: services,
	}, nil
}

// Close releases the history store and drains webhook deliveries.
func (s *Server) Close() error {
	return s.services.Close()
}
