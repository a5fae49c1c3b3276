package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/config"
	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/metrics"
	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/sse"
	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/watch"
	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/ws"
	"github.com/felixgeelhaar/sitepulse/pkg/infrastructure/dashboard"
	"github.com/felixgeelhaar/sitepulse/pkg/infrastructure/inbound"
	"github.com/felixgeelhaar/sitepulse/pkg/storage"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard, JSON API and live streams",
	Long: `Serve the portfolio over HTTP:

  GET /                        HTML dashboard
  GET /api/jobs                job list
  GET /api/jobs/{id}/health    assess one job
  GET /api/jobs/{id}/history   recorded snapshots
  GET /api/portfolio           latest portfolio report (?refresh=true to re-assess)
  GET /events                  server-sent health events
  GET /ws                      websocket portfolio broadcasts
  GET /metrics                 Prometheus metrics
  GET /healthz                 liveness
  POST /hooks/feeds            feed-change notification (re-assesses the job)
  GET /hooks/recent            last received notifications

The portfolio is re-assessed every server.refresh_interval. Changes to
.sitepulse/config.yaml are applied without a restart, and with the file
source a changed bundle triggers a re-assessment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		env, err := loadServices(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		addr := env.cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		server, err := buildServeStack(ctx, env, addr)
		if err != nil {
			return err
		}

		if os.Getenv("SITEPULSE_SKIP_SERVE_START") == "true" {
			fmt.Fprintf(cmd.OutOrStdout(), "SitePulse server ready on %s\n", addr)
			return nil
		}

		go func() {
			<-ctx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()

		fmt.Fprintf(cmd.OutOrStdout(), "SitePulse server listening on http://%s\n", addr)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default server.addr)")
	RootCmd.AddCommand(serveCmd)
}

// buildServeStack wires the streams, metrics and background loops around
// the dashboard server. Background work stops when ctx ends.
func buildServeStack(ctx context.Context, env *appEnv, addr string) (*dashboard.Server, error) {
	svc := env.services
	cfg := env.cfg
	logger := env.logger

	hub := ws.New(svc.Portfolio, cfg.Server.BroadcastInterval, logger)
	svc.Workspace.Publisher.Subscribe(hub.Handler())
	events := sse.NewSSEHandler(svc.Workspace.Publisher)

	receiver := inbound.NewReceiver(inbound.NewAssessProcessor(svc.Health, logger), logger)
	receiver.RegisterHandler(inbound.NewFeedHandler())
	if secret := cfg.Server.InboundSecret(); secret != "" {
		receiver.SetSecret("feeds", secret)
	} else {
		logger.Warn("inbound notifications are unsigned", "env", cfg.Server.InboundSecretEnv)
	}

	server, err := dashboard.NewServer(addr, svc.Health, svc.Portfolio, dashboard.Options{
		Events:  events,
		Stream:  hub,
		Metrics: metrics.Handler(svc.Portfolio),
		Inbound: receiver.Routes(),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard server: %w", err)
	}

	go hub.Run(ctx)
	go svc.Portfolio.Run(ctx, cfg.Server.RefreshInterval)

	configPath := filepath.Join(env.repo.Dir(), storage.ConfigFile)
	go func() {
		err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
			svc.Portfolio.Reconfigure(next.Portfolio.Concurrency, next.Portfolio.Statuses)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("config watch stopped", "error", err)
		}
	}()

	if cfg.Source == config.SourceFile {
		if err := watchBundles(ctx, env, wiring.ResolveDir(env.root, cfg.File.Dir)); err != nil {
			logger.Warn("bundle watch disabled", "dir", cfg.File.Dir, "error", err)
		}
	}
	return server, nil
}

// watchBundles re-assesses the portfolio when a bundle file changes.
func watchBundles(ctx context.Context, env *appEnv, dir string) error {
	w, err := watch.NewFSWatcher(0, []string{"*.json"}, func(ev watch.ChangeEvent) {
		env.logger.Info("bundle changed", "path", ev.Path, "change", ev.ChangeType)
		if _, err := env.services.Portfolio.Assess(ctx); err != nil {
			env.logger.Warn("portfolio refresh failed", "error", err)
		}
	}, env.logger)
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			env.logger.Warn("bundle watch stopped", "error", err)
		}
	}()
	return nil
}
