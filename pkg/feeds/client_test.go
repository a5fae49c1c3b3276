package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
)

// fakeAPI serves canned JSON per path and counts hits.
type fakeAPI struct {
	mu       sync.Mutex
	bodies   map[string]string
	statuses map[string]int
	hits     map[string]int
	queries  map[string]string
	auth     string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		bodies:   map[string]string{},
		statuses: map[string]int{},
		hits:     map[string]int{},
		queries:  map[string]string{},
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.queries[r.URL.Path] = r.URL.RawQuery
	f.auth = r.Header.Get("Authorization")
	status, hasStatus := f.statuses[r.URL.Path]
	body, hasBody := f.bodies[r.URL.Path]
	f.mu.Unlock()

	if hasStatus {
		w.WriteHeader(status)
		return
	}
	if !hasBody {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func (f *fakeAPI) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeAPI) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth
}

func (f *fakeAPI) lastQuery(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[path]
}

func (f *fakeAPI) withAllFeeds(jobID string) *fakeAPI {
	f.bodies["/jobs/"+jobID] = fmt.Sprintf(`{"data":{"id":%q,"name":"Clinic","contractValue":500000}}`, jobID)
	f.bodies["/financial/"+jobID+"/earned-vs-burned"] = `{"totals":{"cpi":0.95,"actualCost":100000,"earnedValue":95000}}`
	f.bodies["/financial/"+jobID+"/ap-register"] = `{"data":[],"meta":{"totalAmount":20000,"paidAmount":5000}}`
	f.bodies["/financial/"+jobID+"/timelog-register"] = `{"data":[],"meta":{"totalHours":120}}`
	f.bodies["/jobs/"+jobID+"/sov-components"] = `{"data":{"summary":{"totalValue":600000}}}`
	f.bodies["/financial/"+jobID+"/progress-reports"] = `{"data":[{"reportNumber":1,"reportDate":"2024-03-01","status":"approved","summary":{"calculatedPercentCTD":20}}]}`
	f.bodies["/financial/"+jobID+"/cost-to-complete/forecasts"] = `{"data":[{"monthNumber":1,"status":"submitted","summary":{"marginAtCompletion":40000}}]}`
	return f
}

func newTestClient(t *testing.T, api http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	opts = append([]Option{
		WithRetry(3, time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	c, err := NewClient(srv.URL, opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"ftp://example.com", "://nope", "example.com"} {
		if _, err := NewClient(raw); err == nil {
			t.Errorf("NewClient(%q): expected error", raw)
		}
	}
}

func TestClient_FetchBundle_AllFeeds(t *testing.T) {
	api := newFakeAPI().withAllFeeds("J-1")
	c := newTestClient(t, api, WithToken("secret"))

	b, err := c.FetchBundle(context.Background(), "J-1")
	if err != nil {
		t.Fatalf("FetchBundle: %v", err)
	}
	if missing := b.Missing(); len(missing) != 0 {
		t.Fatalf("Missing: want none, got %v", missing)
	}
	if b.Job.Name != "Clinic" {
		t.Errorf("job name: want Clinic, got %q", b.Job.Name)
	}
	if b.SOV.Data.Summary.TotalValue != 600000 {
		t.Errorf("sov total: want 600000, got %v", b.SOV.Data.Summary.TotalValue)
	}
	if b.EVM.Totals.CPI == nil || *b.EVM.Totals.CPI != 0.95 {
		t.Errorf("cpi: want 0.95, got %v", b.EVM.Totals.CPI)
	}
	if auth := api.lastAuth(); auth != "Bearer secret" {
		t.Errorf("Authorization: want %q, got %q", "Bearer secret", auth)
	}
	if q := api.lastQuery("/financial/J-1/progress-reports"); q != "status=approved" {
		t.Errorf("progress query: want status=approved, got %q", q)
	}
}

func TestClient_FetchBundle_DegradesMissingFeeds(t *testing.T) {
	api := newFakeAPI().withAllFeeds("J-1")
	delete(api.bodies, "/financial/J-1/ap-register")
	api.statuses["/financial/J-1/earned-vs-burned"] = http.StatusBadRequest
	c := newTestClient(t, api)

	b, err := c.FetchBundle(context.Background(), "J-1")
	if err != nil {
		t.Fatalf("FetchBundle: %v", err)
	}
	got := b.Missing()
	want := []finance.FeedName{finance.FeedEVM, finance.FeedAPRegister}
	if len(got) != len(want) {
		t.Fatalf("Missing: want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Missing[%d]: want %s, got %s", i, want[i], got[i])
		}
	}
}

func TestClient_FetchBundle_JobNotFound(t *testing.T) {
	api := newFakeAPI().withAllFeeds("J-1")
	delete(api.bodies, "/jobs/J-1")
	c := newTestClient(t, api)

	_, err := c.FetchBundle(context.Background(), "J-1")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("want ErrJobNotFound, got %v", err)
	}
}

func TestClient_FetchBundle_Unauthorized(t *testing.T) {
	api := newFakeAPI().withAllFeeds("J-1")
	api.statuses["/jobs/J-1"] = http.StatusUnauthorized
	c := newTestClient(t, api)

	_, err := c.FetchBundle(context.Background(), "J-1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestClient_FetchBundle_JobServerErrorDegrades(t *testing.T) {
	api := newFakeAPI().withAllFeeds("J-1")
	api.statuses["/jobs/J-1"] = http.StatusInternalServerError
	c := newTestClient(t, api)

	b, err := c.FetchBundle(context.Background(), "J-1")
	if err != nil {
		t.Fatalf("FetchBundle: %v", err)
	}
	if b.Job != nil {
		t.Error("expected nil job record")
	}
	if b.EVM == nil {
		t.Error("expected evm feed to survive")
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	api := newFakeAPI().withAllFeeds("J-1")
	api.statuses["/financial/J-1/cost-to-complete/forecasts"] = http.StatusBadGateway
	c := newTestClient(t, api)

	b, err := c.FetchBundle(context.Background(), "J-1")
	if err != nil {
		t.Fatalf("FetchBundle: %v", err)
	}
	if b.Forecasts != nil {
		t.Error("expected forecasts to degrade")
	}
	if n := api.hitCount("/financial/J-1/cost-to-complete/forecasts"); n != 3 {
		t.Errorf("forecast attempts: want 3, got %d", n)
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	api := newFakeAPI().withAllFeeds("J-1")
	api.statuses["/jobs/J-1/sov-components"] = http.StatusNotFound
	c := newTestClient(t, api)

	if _, err := c.FetchBundle(context.Background(), "J-1"); err != nil {
		t.Fatalf("FetchBundle: %v", err)
	}
	if n := api.hitCount("/jobs/J-1/sov-components"); n != 1 {
		t.Errorf("sov attempts: want 1, got %d", n)
	}
}

func TestClient_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"data":[{"id":"J-1","name":"Clinic"},{"id":"J-2","name":"Depot"}]}`)
	})
	c := newTestClient(t, mux)

	jobs, err := c.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs: want 2, got %d", len(jobs))
	}
	if calls.Load() != 2 {
		t.Errorf("calls: want 2, got %d", calls.Load())
	}
}

func TestClient_FetchBundle_CancelledContext(t *testing.T) {
	api := newFakeAPI().withAllFeeds("J-1")
	c := newTestClient(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.FetchBundle(ctx, "J-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestClient_Job_FillsMissingID(t *testing.T) {
	api := newFakeAPI()
	api.bodies["/jobs/J-9"] = `{"data":{"name":"No ID"}}`
	c := newTestClient(t, api)

	job, err := c.Job(context.Background(), "J-9")
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if job.ID != "J-9" {
		t.Errorf("ID: want J-9, got %q", job.ID)
	}
}
