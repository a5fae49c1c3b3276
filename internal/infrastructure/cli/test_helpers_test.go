package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/config"
	"github.com/felixgeelhaar/sitepulse/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runCLI executes the root command with args against the workspace at root
// and returns combined stdout and stderr.
func runCLI(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	defer resetFlags(RootCmd)

	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	RootCmd.SetErr(&buf)
	RootCmd.SetIn(bytes.NewReader(nil))
	defer func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetIn(nil)
	}()

	if root != "" {
		args = append([]string{"--project", root}, args...)
	}
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func findRepoRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		dir = filepath.Dir(dir)
	}
	t.Fatal("go.mod not found")
	return ""
}

func fixturePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(findRepoRoot(t), "pkg", "feeds", "testdata", "J-100.json")
}

// fileWorkspace creates an initialized workspace reading bundles from
// <root>/bundles, seeded with the J-100 fixture.
func fileWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	bundles := filepath.Join(root, "bundles")
	if err := os.MkdirAll(bundles, 0700); err != nil {
		t.Fatalf("mkdir bundles: %v", err)
	}
	data, err := os.ReadFile(fixturePath(t))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bundles, "J-100.json"), data, 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	repo := storage.NewFilesystemRepository(root)
	if err := repo.Initialize(); err != nil {
		t.Fatalf("init repo: %v", err)
	}
	cfg := config.Default()
	cfg.Source = config.SourceFile
	cfg.File.Dir = "bundles"
	cfg.Logging.Level = "error"
	if err := config.Save(repo, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return root
}
