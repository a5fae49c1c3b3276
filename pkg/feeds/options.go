package feeds

import (
	"log/slog"
	"net/http"
	"time"
)

type options struct {
	timeout      time.Duration
	maxAttempts  int
	initialDelay time.Duration
	token        string
	httpClient   *http.Client
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		timeout:      15 * time.Second,
		maxAttempts:  3,
		initialDelay: 200 * time.Millisecond,
	}
}

// Option configures the API client.
type Option func(*options)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetry configures retry behaviour for transport errors and 5xx responses.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(o *options) {
		if maxAttempts > 0 {
			o.maxAttempts = maxAttempts
		}
		if initialDelay > 0 {
			o.initialDelay = initialDelay
		}
	}
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the logger used for degraded feed warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
