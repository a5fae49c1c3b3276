// Command sitepulse-feed-mock is a feed-source plugin that serves bundle
// files from a directory. It is used for demos and plugin integration tests.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	domainPlugin "github.com/felixgeelhaar/sitepulse/pkg/domain/plugin"
	"github.com/felixgeelhaar/sitepulse/pkg/feeds"
	infraPlugin "github.com/felixgeelhaar/sitepulse/pkg/plugin"
	"github.com/hashicorp/go-plugin"
)

type MockFeeds struct {
	src *feeds.FileSource
}

func (m *MockFeeds) Init(config map[string]string) error {
	dir := config["dir"]
	if dir == "" {
		dir = os.Getenv("SITEPULSE_MOCK_DIR")
	}
	if dir == "" {
		return errors.New("mock feeds: dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return err
	}
	m.src = feeds.NewFileSource(dir)
	return nil
}

func (m *MockFeeds) ListJobs() ([]finance.Job, error) {
	if m.src == nil {
		return nil, errors.New("mock feeds: not initialized")
	}
	return m.src.ListJobs(context.Background())
}

func (m *MockFeeds) FetchBundle(jobID string) (*finance.FeedBundle, error) {
	if m.src == nil {
		return nil, errors.New("mock feeds: not initialized")
	}
	b, err := m.src.FetchBundle(context.Background(), jobID)
	if errors.Is(err, feeds.ErrJobNotFound) {
		return nil, domainPlugin.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func main() {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: infraPlugin.HandshakeConfig,
		Plugins: map[string]plugin.Plugin{
			"feeds": &domainPlugin.FeedSourcePlugin{Impl: &MockFeeds{}},
		},
	})
}
