package plugin

import (
	"errors"
	"sort"
)

// PluginConfig points at a feed plugin binary and the settings passed to its Init.
type PluginConfig struct {
	// Binary is the path to the plugin binary
	Binary string `yaml:"binary" json:"binary"`
	// Config holds the plugin-specific configuration key-value pairs
	Config map[string]string `yaml:"config,omitempty" json:"config,omitempty"`
}

// Validate reports whether the configuration can be loaded.
func (c PluginConfig) Validate() error {
	if c.Binary == "" {
		return errors.New("plugin binary is required")
	}
	return nil
}

// Keys returns the configured setting names in sorted order.
func (c PluginConfig) Keys() []string {
	keys := make([]string, 0, len(c.Config))
	for k := range c.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
