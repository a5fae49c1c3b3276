package plugin

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	domainPlugin "github.com/felixgeelhaar/sitepulse/pkg/domain/plugin"
)

func TestLoader_Full(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the mock plugin")
	}
	tempDir := t.TempDir()

	pluginBin := filepath.Join(tempDir, "sitepulse-feed-mock")
	cmd := exec.Command("go", "build", "-o", pluginBin, "../../cmd/sitepulse-feed-mock")
	if err := cmd.Run(); err != nil {
		t.Skipf("Skipping full plugin test: build failed: %v", err)
	}

	l := NewLoader()
	defer l.Cleanup()

	fixtures, err := filepath.Abs("../feeds/testdata")
	if err != nil {
		t.Fatal(err)
	}
	impl, err := l.Load(domainPlugin.PluginConfig{
		Binary: pluginBin,
		Config: map[string]string{"dir": fixtures},
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	b, err := NewSource(impl).FetchBundle(context.Background(), "J-100")
	if err != nil {
		t.Fatalf("FetchBundle: %v", err)
	}
	if b.Job == nil || b.Job.Name != "Harbor Street Clinic" {
		t.Errorf("job: got %+v", b.Job)
	}
}

func TestLoader_Handshake(t *testing.T) {
	if HandshakeConfig.MagicCookieKey != "SITEPULSE_PLUGIN" {
		t.Errorf("wrong magic cookie key")
	}
	if _, ok := PluginMap[pluginName]; !ok {
		t.Errorf("plugin map missing %q", pluginName)
	}
}

func TestLoader_LoadErrors(t *testing.T) {
	tempDir := t.TempDir()
	nonExec := filepath.Join(tempDir, "plugin")
	if err := os.WriteFile(nonExec, []byte("not executable"), 0600); err != nil {
		t.Fatalf("create file: %v", err)
	}

	tests := []struct {
		name string
		cfg  domainPlugin.PluginConfig
	}{
		{"empty", domainPlugin.PluginConfig{}},
		{"missing", domainPlugin.PluginConfig{Binary: "/invalid/path/999"}},
		{"directory", domainPlugin.PluginConfig{Binary: tempDir}},
		{"not executable", domainPlugin.PluginConfig{Binary: nonExec}},
	}

	l := NewLoader()
	defer l.Cleanup()
	for _, tt := range tests {
		if _, err := l.Load(tt.cfg); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}
