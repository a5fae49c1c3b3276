// Package plugin loads feed-source plugins and adapts them to feeds.Source.
package plugin

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	domainPlugin "github.com/felixgeelhaar/sitepulse/pkg/domain/plugin"
	goplugin "github.com/hashicorp/go-plugin"
)

const pluginName = "feeds"

var HandshakeConfig = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "SITEPULSE_PLUGIN",
	MagicCookieValue: "sitepulse",
}

var PluginMap = map[string]goplugin.Plugin{
	pluginName: &domainPlugin.FeedSourcePlugin{},
}

// Loader starts plugin processes and keeps them until Cleanup.
type Loader struct {
	mu      sync.Mutex
	plugins map[string]*goplugin.Client
}

func NewLoader() *Loader {
	return &Loader{
		plugins: make(map[string]*goplugin.Client),
	}
}

// Load starts the plugin at path and initializes it with cfg.
func (l *Loader) Load(cfg domainPlugin.PluginConfig) (domainPlugin.FeedSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	absPath, err := checkBinary(cfg.Binary)
	if err != nil {
		return nil, err
	}

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginMap,
		Cmd:             exec.Command(absPath), // #nosec G204 -- binary path comes from workspace config
		AllowedProtocols: []goplugin.Protocol{
			goplugin.ProtocolNetRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to create plugin client: %w", err)
	}

	raw, err := rpcClient.Dispense(pluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}
	src, ok := raw.(domainPlugin.FeedSource)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %s does not implement a feed source", absPath)
	}

	if err := src.Init(cfg.Config); err != nil {
		client.Kill()
		return nil, fmt.Errorf("init plugin: %w", err)
	}

	l.mu.Lock()
	if prev, ok := l.plugins[absPath]; ok {
		prev.Kill()
	}
	l.plugins[absPath] = client
	l.mu.Unlock()
	return src, nil
}

// Cleanup kills every plugin process started by the loader.
func (l *Loader) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for path, client := range l.plugins {
		client.Kill()
		delete(l.plugins, path)
	}
}

func checkBinary(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid plugin path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("plugin not found: %s", absPath)
		}
		return "", fmt.Errorf("cannot access plugin: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("plugin path is a directory: %s", absPath)
	}
	if runtime.GOOS != "windows" && info.Mode()&0111 == 0 {
		return "", fmt.Errorf("plugin is not executable: %s", absPath)
	}
	return absPath, nil
}
