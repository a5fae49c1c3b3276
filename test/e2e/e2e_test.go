package e2e

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
)

// buildBinary compiles cmd/sitepulse into a temp dir.
func buildBinary(t *testing.T) string {
	t.Helper()
	root, err := filepath.Abs("../..")
	if err != nil {
		t.Fatal(err)
	}
	bin := filepath.Join(t.TempDir(), "sitepulse")
	build := exec.Command("go", "build", "-o", bin, "./cmd/sitepulse")
	build.Dir = root
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("build sitepulse: %v\n%s", err, out)
	}
	return bin
}

func TestHappyPath(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	bin := buildBinary(t)
	tempDir := t.TempDir()

	fixture, err := os.ReadFile(filepath.Join("..", "..", "pkg", "feeds", "testdata", "J-100.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(tempDir, "bundles"), 0700); err != nil {
		t.Fatal(err)
	}
	bundlePath := filepath.Join(tempDir, "bundles", "J-100.json")
	if err := os.WriteFile(bundlePath, fixture, 0600); err != nil {
		t.Fatal(err)
	}

	run := func(args ...string) string {
		cmd := exec.Command(bin, args...)
		cmd.Dir = tempDir
		cmd.Env = append(os.Environ(), "SITEPULSE_LOG_LEVEL=error")
		output, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("sitepulse %v failed: %v\nOutput: %s", args, err, output)
		}
		return string(output)
	}

	// 1. Init
	out := run("init", "--source", "file", "--dir", "bundles")
	if !strings.Contains(out, "Initialized SitePulse workspace") {
		t.Errorf("unexpected init output: %s", out)
	}
	if _, err := os.Stat(filepath.Join(tempDir, ".sitepulse", "config.yaml")); err != nil {
		t.Errorf(".sitepulse/config.yaml missing: %v", err)
	}

	// 2. Jobs
	out = run("jobs")
	if !strings.Contains(out, "J-100") {
		t.Errorf("jobs output missing J-100: %s", out)
	}

	// 3. Assess one job, twice, so history has something to diff.
	out = run("health", "J-100", "--json")
	var report struct {
		Assessment finance.Assessment `json:"assessment"`
		Snapshot   finance.Snapshot   `json:"snapshot"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode health: %v\n%s", err, out)
	}
	if report.Assessment.Health.HealthStatus != finance.HealthCritical {
		t.Errorf("health: want critical, got %s", report.Assessment.Health.HealthStatus)
	}
	if report.Snapshot.ID == "" {
		t.Error("expected a recorded snapshot")
	}
	run("health", "J-100")

	// 4. History
	out = run("history", "J-100", "--diff")
	if !strings.Contains(out, "no change") {
		t.Errorf("history diff of identical snapshots: %s", out)
	}

	// 5. Portfolio
	out = run("health")
	if !strings.Contains(out, "Portfolio: 1 jobs") {
		t.Errorf("portfolio output: %s", out)
	}

	// 6. Offline evaluation matches the live assessment.
	out = run("evaluate", "--file", bundlePath, "--json")
	var offline finance.Assessment
	if err := json.Unmarshal([]byte(out), &offline); err != nil {
		t.Fatalf("decode evaluate: %v\n%s", err, out)
	}
	if offline.Health.HealthStatus != report.Assessment.Health.HealthStatus {
		t.Errorf("evaluate: want %s, got %s", report.Assessment.Health.HealthStatus, offline.Health.HealthStatus)
	}

	// 7. Events were logged.
	if _, err := os.Stat(filepath.Join(tempDir, ".sitepulse", "events.jsonl")); err != nil {
		t.Errorf("event log missing: %v", err)
	}
}

func TestUnknownJobFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	bin := buildBinary(t)
	tempDir := t.TempDir()

	initCmd := exec.Command(bin, "init", "--source", "file", "--dir", "bundles")
	initCmd.Dir = tempDir
	if out, err := initCmd.CombinedOutput(); err != nil {
		t.Fatalf("init: %v\n%s", err, out)
	}

	cmd := exec.Command(bin, "health", "J-404")
	cmd.Dir = tempDir
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("expected failure, got: %s", out)
	}
	if !strings.Contains(string(out), "Error: job not found") {
		t.Errorf("unexpected output: %s", out)
	}
}
