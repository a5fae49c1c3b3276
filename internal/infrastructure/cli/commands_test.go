package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/config"
	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"github.com/felixgeelhaar/sitepulse/pkg/storage"
)

func TestRoot_Help(t *testing.T) {
	out, err := runCLI(t, "", "--help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, cmd := range []string{"health", "history", "evaluate", "serve", "mcp", "webhook"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("help missing %q", cmd)
		}
	}
}

func TestInit(t *testing.T) {
	root := t.TempDir()

	out, err := runCLI(t, root, "init", "--source", "file", "--dir", "bundles")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "Initialized SitePulse workspace") {
		t.Errorf("unexpected output: %q", out)
	}

	cfg, err := config.Load(storage.NewFilesystemRepository(root))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Source != config.SourceFile || cfg.File.Dir != "bundles" {
		t.Errorf("config: want file/bundles, got %s/%s", cfg.Source, cfg.File.Dir)
	}

	if _, err := runCLI(t, root, "init", "--source", "file"); err == nil {
		t.Error("second init without --force should fail")
	}
	if _, err := runCLI(t, root, "init", "--source", "file", "--dir", "other", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestInit_InvalidSettings(t *testing.T) {
	root := t.TempDir()
	if _, err := runCLI(t, root, "init", "--source", "api"); err == nil {
		t.Fatal("api source without --api-url should fail")
	}
	if _, err := os.Stat(filepath.Join(root, storage.WorkspaceDir)); !os.IsNotExist(err) {
		t.Error("workspace should not be created for invalid settings")
	}
}

func TestCommands_NotInitialized(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "jobs")
	if !errors.Is(err, storage.ErrNotInitialized) {
		t.Fatalf("want ErrNotInitialized, got %v", err)
	}
	var cliErr *CLIError
	if !errors.As(err, &cliErr) {
		t.Error("expected a CLIError with a hint")
	}
}

func TestJobs(t *testing.T) {
	root := fileWorkspace(t)

	out, err := runCLI(t, root, "jobs", "--json")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	var jobs []finance.Job
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(jobs) != 1 || jobs[0].ID != "J-100" {
		t.Errorf("jobs: want [J-100], got %+v", jobs)
	}

	out, err = runCLI(t, root, "jobs")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, "Harbor Street Clinic") || !strings.Contains(out, "$1,200,000") {
		t.Errorf("table output:\n%s", out)
	}
}

func TestHealth_Job(t *testing.T) {
	root := fileWorkspace(t)

	out, err := runCLI(t, root, "health", "J-100", "--json")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var report struct {
		Assessment finance.Assessment `json:"assessment"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if report.Assessment.JobID != "J-100" {
		t.Errorf("jobId: want J-100, got %s", report.Assessment.JobID)
	}
	if report.Assessment.Health.HealthStatus != finance.HealthCritical {
		t.Errorf("health: want critical, got %s", report.Assessment.Health.HealthStatus)
	}

	out, err = runCLI(t, root, "health", "J-100")
	if err != nil {
		t.Fatalf("health text: %v", err)
	}
	for _, want := range []string{"Harbor Street Clinic", "0.84 (Over Budget)", "Issues:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHealth_Weekly(t *testing.T) {
	root := fileWorkspace(t)

	out, err := runCLI(t, root, "health", "J-100", "--weekly", "--json")
	if err != nil {
		t.Fatalf("health --weekly: %v", err)
	}
	var report struct {
		Assessment finance.Assessment   `json:"assessment"`
		Weekly     []finance.TimeBucket `json:"weekly"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if report.Assessment.JobID != "J-100" {
		t.Errorf("jobId: want J-100, got %s", report.Assessment.JobID)
	}
	if len(report.Weekly) == 0 {
		t.Error("expected weekly buckets")
	}
	for i := 1; i < len(report.Weekly); i++ {
		if !report.Weekly[i-1].Start.Before(report.Weekly[i].Start) {
			t.Errorf("weeks out of order at %d", i)
		}
	}

	if _, err := runCLI(t, root, "health", "--weekly"); err == nil {
		t.Error("--weekly without a job should fail")
	}
}

func TestHealth_UnknownJob(t *testing.T) {
	root := fileWorkspace(t)
	_, err := runCLI(t, root, "health", "J-404")
	var cliErr *CLIError
	if !errors.As(err, &cliErr) || cliErr.Message != "job not found" {
		t.Fatalf("want job not found CLIError, got %v", err)
	}
}

func TestHealth_Portfolio(t *testing.T) {
	root := fileWorkspace(t)

	out, err := runCLI(t, root, "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	for _, want := range []string{"Portfolio: 1 jobs", "0 good, 0 at risk, 1 critical", "J-100"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHistory(t *testing.T) {
	root := fileWorkspace(t)

	out, err := runCLI(t, root, "history", "J-100")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No snapshots recorded") {
		t.Errorf("empty history output: %q", out)
	}

	for i := 0; i < 2; i++ {
		if _, err := runCLI(t, root, "health", "J-100"); err != nil {
			t.Fatalf("health run %d: %v", i, err)
		}
	}

	out, err = runCLI(t, root, "history", "J-100", "--json")
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var snaps []finance.Snapshot
	if err := json.Unmarshal([]byte(out), &snaps); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(snaps) != 2 {
		t.Fatalf("snapshots: want 2, got %d", len(snaps))
	}

	out, err = runCLI(t, root, "history", "J-100", "--diff")
	if err != nil {
		t.Fatalf("history --diff: %v", err)
	}
	if !strings.Contains(out, "no change") {
		t.Errorf("identical evaluations should show no change:\n%s", out)
	}

	out, err = runCLI(t, root, "history", "J-100", "--limit", "1", "--json")
	if err != nil {
		t.Fatalf("history --limit: %v", err)
	}
	snaps = nil
	if err := json.Unmarshal([]byte(out), &snaps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snaps) != 1 {
		t.Errorf("limit: want 1, got %d", len(snaps))
	}
}

func TestHistory_Disabled(t *testing.T) {
	root := fileWorkspace(t)
	repo := storage.NewFilesystemRepository(root)
	cfg, err := config.Load(repo)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.History.Enabled = false
	if err := config.Save(repo, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	_, err = runCLI(t, root, "history", "J-100")
	if !errors.Is(err, errHistoryDisabled) {
		t.Fatalf("want errHistoryDisabled, got %v", err)
	}
}

func TestEvaluate(t *testing.T) {
	out, err := runCLI(t, "", "evaluate", "--file", fixturePath(t), "--now", "2025-06-15", "--json")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	var a finance.Assessment
	if err := json.Unmarshal([]byte(out), &a); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if a.JobID != "J-100" || a.Health.HealthStatus != finance.HealthCritical {
		t.Errorf("assessment: got %s/%s", a.JobID, a.Health.HealthStatus)
	}
	want := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	if !a.EvaluatedAt.Equal(want) {
		t.Errorf("evaluatedAt: want %v, got %v", want, a.EvaluatedAt)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"job": {"name": "no id"}}`), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no file", []string{"evaluate"}, "no bundle given"},
		{"bad date", []string{"evaluate", "--file", bad, "--now", "15/06/2025"}, "invalid --now"},
		{"missing file", []string{"evaluate", "--file", filepath.Join(dir, "nope.json")}, "read bundle"},
		{"schema violation", []string{"evaluate", "--file", bad}, "feed bundle failed validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, "", tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("want error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestEvaluate_Schema(t *testing.T) {
	out, err := runCLI(t, "", "evaluate", "--schema")
	if err != nil {
		t.Fatalf("evaluate --schema: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if doc["$schema"] == nil {
		t.Error("expected $schema key")
	}
}

func TestWebhookDeadLetters(t *testing.T) {
	root := fileWorkspace(t)

	out, err := runCLI(t, root, "webhook", "deadletters")
	if err != nil {
		t.Fatalf("deadletters: %v", err)
	}
	if !strings.Contains(out, "No dead letters.") {
		t.Errorf("unexpected output: %q", out)
	}

	store := webhook.NewDeadLetterStore(filepath.Join(root, storage.WorkspaceDir, storage.DeadLetterFile))
	if err := store.Append(events.DeadLetter{
		Timestamp: time.Now(), WebhookName: "ops", URL: "http://127.0.0.1:1",
		EventType: events.EventTypeHealthChanged, Error: "connection refused", Attempts: 3,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err = runCLI(t, root, "webhook", "deadletters", "--json")
	if err != nil {
		t.Fatalf("deadletters --json: %v", err)
	}
	var letters []events.DeadLetter
	if err := json.Unmarshal([]byte(out), &letters); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(letters) != 1 || letters[0].WebhookName != "ops" {
		t.Errorf("letters: got %+v", letters)
	}

	if _, err := runCLI(t, root, "webhook", "deadletters", "--clear"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	remaining, err := store.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("after clear: want 0, got %d", len(remaining))
	}
}

func TestWebhookListAndTest(t *testing.T) {
	root := fileWorkspace(t)
	repo := storage.NewFilesystemRepository(root)
	cfg, err := config.Load(repo)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Webhooks = []events.WebhookEndpoint{
		{Name: "ops", URL: "http://127.0.0.1:1/hook", Secret: "s3cret", MaxRetries: 1, RetryDelay: time.Millisecond, Enabled: false},
	}
	if err := config.Save(repo, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := runCLI(t, root, "webhook", "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Contains(out, "s3cret") {
		t.Error("secret should be redacted")
	}

	if _, err := runCLI(t, root, "webhook", "test", "missing"); err == nil {
		t.Error("unknown webhook should fail")
	}

	_, err = runCLI(t, root, "webhook", "test", "ops")
	var cliErr *CLIError
	if !errors.As(err, &cliErr) || !strings.Contains(cliErr.Message, "delivery to ops failed") {
		t.Fatalf("want delivery failure, got %v", err)
	}
}

func TestServe_Wiring(t *testing.T) {
	t.Setenv("SITEPULSE_SKIP_SERVE_START", "true")
	root := fileWorkspace(t)

	out, err := runCLI(t, root, "serve", "--addr", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !strings.Contains(out, "ready on 127.0.0.1:0") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestMCP_OpenAPI(t *testing.T) {
	root := fileWorkspace(t)

	out, err := runCLI(t, root, "mcp", "--openapi")
	if err != nil {
		t.Fatalf("mcp --openapi: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("openapi is not JSON: %v", err)
	}
	paths, _ := doc["paths"].(map[string]interface{})
	if _, ok := paths["/tools/job_health"]; !ok {
		t.Errorf("missing /tools/job_health in %v", paths)
	}
}

func TestMCP_UnsupportedTransport(t *testing.T) {
	root := fileWorkspace(t)
	if _, err := runCLI(t, root, "mcp", "--transport", "carrier-pigeon"); err == nil {
		t.Error("expected unsupported transport error")
	}
}

func TestDashboard_Skip(t *testing.T) {
	t.Setenv("SITEPULSE_SKIP_DASHBOARD_RUN", "true")
	root := fileWorkspace(t)
	if _, err := runCLI(t, root, "dashboard"); err != nil {
		t.Fatalf("dashboard: %v", err)
	}
}

func TestServe_InboundNotification(t *testing.T) {
	root := fileWorkspace(t)
	projectPath = root
	defer func() { projectPath = "" }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env, err := loadServices(ctx)
	if err != nil {
		t.Fatalf("loadServices: %v", err)
	}
	defer env.Close()
	defer cancel()

	server, err := buildServeStack(ctx, env, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("buildServeStack: %v", err)
	}
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/hooks/feeds", "application/json",
		strings.NewReader(`{"event":"feed.updated","jobId":"J-100","feed":"timelog"}`))
	if err != nil {
		t.Fatalf("POST /hooks/feeds: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: want 200, got %d", resp.StatusCode)
	}

	snaps, err := env.services.Health.History(ctx, "J-100", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(snaps) == 0 {
		t.Error("expected the notification to record a snapshot")
	}
}
