// Package dashboard serves the SitePulse web overview, JSON API and live
// streams for `sitepulse serve`.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/application"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"github.com/felixgeelhaar/sitepulse/pkg/feeds"
)

//go:embed templates/*
var templatesFS embed.FS

const defaultHistoryLimit = 20

// HealthProvider answers per-job questions.
type HealthProvider interface {
	ListJobs(ctx context.Context) ([]finance.Job, error)
	Assess(ctx context.Context, jobID string) (*application.JobReport, error)
	History(ctx context.Context, jobID string, limit int) ([]finance.Snapshot, error)
}

// PortfolioProvider supplies portfolio reports.
type PortfolioProvider interface {
	Latest() *application.PortfolioReport
	Assess(ctx context.Context) (*application.PortfolioReport, error)
}

// Options wires the optional handlers mounted next to the JSON API. Nil
// handlers are not mounted.
type Options struct {
	Events  http.Handler // GET /events
	Stream  http.Handler // GET /ws
	Metrics http.Handler // GET /metrics
	Inbound http.Handler // /hooks/
	Logger  *slog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	addr      string
	health    HealthProvider
	portfolio PortfolioProvider
	opts      Options
	logger    *slog.Logger
	tmpl      *template.Template
	server    *http.Server
}

// NewServer creates a new dashboard server.
func NewServer(addr string, health HealthProvider, portfolio PortfolioProvider, opts Options) (*Server, error) {
	funcMap := template.FuncMap{
		"healthClass": healthClass,
		"formatTime":  formatTime,
		"cpi":         cpiText,
		"percent":     func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) + "%" },
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      addr,
		health:    health,
		portfolio: portfolio,
		opts:      opts,
		logger:    logger,
		tmpl:      tmpl,
	}, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/jobs", s.handleJobs)
	mux.HandleFunc("GET /api/jobs/{id}/health", s.handleJobHealth)
	mux.HandleFunc("GET /api/jobs/{id}/history", s.handleJobHistory)
	mux.HandleFunc("GET /api/portfolio", s.handlePortfolio)

	if s.opts.Events != nil {
		mux.Handle("GET /events", s.opts.Events)
	}
	if s.opts.Stream != nil {
		mux.Handle("GET /ws", s.opts.Stream)
	}
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}
	if s.opts.Inbound != nil {
		mux.Handle("/hooks/", s.opts.Inbound)
	}
	return mux
}

// Start listens on the configured address. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
	}

	s.logger.Info("dashboard server starting", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// PageData holds data for template rendering.
type PageData struct {
	Title  string
	Report *application.PortfolioReport
	Error  string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := PageData{Title: "Portfolio", Report: s.portfolio.Latest()}
	if data.Report == nil {
		data.Error = "No portfolio report yet. The first refresh is still running."
	}
	s.render(w, "index.html", data)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.health.ListJobs(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []finance.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": jobs})
}

func (s *Server) handleJobHealth(w http.ResponseWriter, r *http.Request) {
	report, err := s.health.Assess(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	snaps, err := s.health.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if snaps == nil {
		snaps = []finance.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": snaps})
}

// handlePortfolio returns the latest report. ?refresh=true, or the absence
// of any report, runs an assessment first.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	report := s.portfolio.Latest()
	if report == nil || r.URL.Query().Get("refresh") == "true" {
		var err error
		if report, err = s.portfolio.Assess(r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, report)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, feeds.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.logger.Warn("request failed", "path", r.URL.Path, "status", status, "error", err)
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template error", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// Template helper functions
func healthClass(h finance.HealthStatus) string {
	switch h {
	case finance.HealthGood:
		return "health-good"
	case finance.HealthAtRisk:
		return "health-at-risk"
	case finance.HealthCritical:
		return "health-critical"
	default:
		return "health-unknown"
	}
}

func cpiText(v *float64) string {
	label := finance.CPILabel(v)
	if label == finance.NotAvailable {
		return label.Text
	}
	return fmt.Sprintf("%.2f (%s)", *v, label.Text)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}
