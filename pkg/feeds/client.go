package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"golang.org/x/sync/errgroup"
)

// Upstream endpoints. %s is the path-escaped job ID.
const (
	pathJobs            = "/jobs"
	pathJob             = "/jobs/%s"
	pathEVM             = "/financial/%s/earned-vs-burned"
	pathAPRegister      = "/financial/%s/ap-register"
	pathTimelog         = "/financial/%s/timelog-register"
	pathSOV             = "/jobs/%s/sov-components"
	pathProgressReports = "/financial/%s/progress-reports"
	pathForecasts       = "/financial/%s/cost-to-complete/forecasts"
)

// maxResponseBytes bounds a single feed response.
const maxResponseBytes = 16 << 20

// Client reads feeds from the project management REST API.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	retryCfg retry.Config
	timeout  time.Duration
	logger   *slog.Logger
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https: %q", baseURL)
	}

	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{}
	}
	if o.token != "" {
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		authed := *hc
		authed.Transport = &authRoundTripper{base: base, token: o.token}
		hc = &authed
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: u,
		http:    hc,
		timeout: o.timeout,
		retryCfg: retry.Config{
			MaxAttempts:   o.maxAttempts,
			InitialDelay:  o.initialDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
		logger: logger,
	}, nil
}

// authRoundTripper injects the bearer token into every outgoing request.
type authRoundTripper struct {
	base  http.RoundTripper
	token string
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

// rawResponse is a completed request whose status is not worth retrying.
type rawResponse struct {
	status int
	body   []byte
}

// get fetches path, which must already be escaped, and decodes the JSON body into out. Transport errors and
// 5xx/429 responses are retried; other statuses are returned immediately.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.baseURL.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	r := retry.New[*rawResponse](c.retryCfg)
	t := timeout.New[*rawResponse](timeout.Config{DefaultTimeout: c.timeout})

	resp, err := r.Do(ctx, func(ctx context.Context) (*rawResponse, error) {
		return t.Execute(ctx, c.timeout, func(ctx context.Context) (*rawResponse, error) {
			return c.do(ctx, target)
		})
	})
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}

	switch {
	case resp.status == http.StatusOK:
		if err := json.Unmarshal(resp.body, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	case resp.status == http.StatusNotFound:
		return fmt.Errorf("GET %s: %w", path, errNotFound)
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return fmt.Errorf("GET %s: %w", path, ErrUnauthorized)
	default:
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.status)
	}
}

func (c *Client) do(ctx context.Context, target string) (*rawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "SitePulse/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	return &rawResponse{status: resp.StatusCode, body: body}, nil
}

type jobEnvelope struct {
	Data finance.Job `json:"data"`
}

type jobListEnvelope struct {
	Data []finance.Job `json:"data"`
}

// ListJobs returns every job the API exposes.
func (c *Client) ListJobs(ctx context.Context) ([]finance.Job, error) {
	var env jobListEnvelope
	if err := c.get(ctx, pathJobs, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Job returns one job record.
func (c *Client) Job(ctx context.Context, jobID string) (*finance.Job, error) {
	var env jobEnvelope
	if err := c.get(ctx, fmt.Sprintf(pathJob, url.PathEscape(jobID)), nil, &env); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}
	if env.Data.ID == "" {
		env.Data.ID = jobID
	}
	return &env.Data, nil
}

// FetchBundle fetches the job record and all six feeds concurrently. Each
// feed that fails is logged and left nil.
func (c *Client) FetchBundle(ctx context.Context, jobID string) (finance.FeedBundle, error) {
	b := finance.FeedBundle{JobID: jobID}
	id := url.PathEscape(jobID)

	var (
		g      errgroup.Group
		jobErr error
	)

	g.Go(func() error {
		b.Job, jobErr = c.Job(ctx, jobID)
		return nil
	})
	g.Go(func() error {
		b.EVM = fetchFeed[finance.EVMFeed](ctx, c, jobID, finance.FeedEVM, fmt.Sprintf(pathEVM, id), nil)
		return nil
	})
	g.Go(func() error {
		b.APRegister = fetchFeed[finance.APRegisterFeed](ctx, c, jobID, finance.FeedAPRegister, fmt.Sprintf(pathAPRegister, id), nil)
		return nil
	})
	g.Go(func() error {
		b.Timelog = fetchFeed[finance.TimelogFeed](ctx, c, jobID, finance.FeedTimelog, fmt.Sprintf(pathTimelog, id), nil)
		return nil
	})
	g.Go(func() error {
		b.SOV = fetchFeed[finance.SOVFeed](ctx, c, jobID, finance.FeedSOV, fmt.Sprintf(pathSOV, id), nil)
		return nil
	})
	g.Go(func() error {
		q := url.Values{"status": []string{finance.ProgressReportStatusApproved}}
		b.ProgressReports = fetchFeed[finance.ProgressReportsFeed](ctx, c, jobID, finance.FeedProgressReports, fmt.Sprintf(pathProgressReports, id), q)
		return nil
	})
	g.Go(func() error {
		b.Forecasts = fetchFeed[finance.ForecastsFeed](ctx, c, jobID, finance.FeedForecasts, fmt.Sprintf(pathForecasts, id), nil)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return finance.FeedBundle{}, err
	}
	if errors.Is(jobErr, ErrJobNotFound) || errors.Is(jobErr, ErrUnauthorized) {
		return finance.FeedBundle{}, jobErr
	}
	if jobErr != nil {
		c.logger.Warn("feed degraded", "job_id", jobID, "feed", finance.FeedJob, "error", jobErr)
	}
	return b, nil
}

// fetchFeed fetches one feed, logging and returning nil on failure.
func fetchFeed[T any](ctx context.Context, c *Client, jobID string, name finance.FeedName, path string, query url.Values) *T {
	var v T
	if err := c.get(ctx, path, query, &v); err != nil {
		c.logger.Warn("feed degraded", "job_id", jobID, "feed", name, "error", err)
		return nil
	}
	return &v
}
