// Package plugin defines the contract between sitepulse and feed-source
// plugins served over hashicorp/go-plugin net/rpc.
package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/rpc"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"github.com/hashicorp/go-plugin"
)

// ErrJobNotFound is returned by a FeedSource that does not know the job.
var ErrJobNotFound = errors.New("plugin: job not found")

// FeedSource is the interface that feed plugins must implement.
type FeedSource interface {
	// Init passes the configured key/value settings to the plugin.
	Init(config map[string]string) error

	// ListJobs returns every job the plugin can serve.
	ListJobs() ([]finance.Job, error)

	// FetchBundle returns the feeds for one job. Feeds the plugin cannot
	// supply are left nil.
	FetchBundle(jobID string) (*finance.FeedBundle, error)
}

// FeedSourcePlugin is the implementation of plugin.Plugin so we can serve/consume this.
type FeedSourcePlugin struct {
	Impl FeedSource
}

func (p *FeedSourcePlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &FeedSourceRPCServer{Impl: p.Impl}, nil
}

func (p *FeedSourcePlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &FeedSourceRPCClient{Client: c}, nil
}

// BundleReply carries a bundle as JSON so that null feeds and zero values
// survive the trip; gob drops both.
type BundleReply struct {
	Bundle   []byte
	NotFound bool
}

type FeedSourceRPCClient struct{ Client *rpc.Client }

func (c *FeedSourceRPCClient) Init(config map[string]string) error {
	var resp interface{}
	return c.Client.Call("Plugin.Init", config, &resp)
}

func (c *FeedSourceRPCClient) ListJobs() ([]finance.Job, error) {
	var resp []finance.Job
	err := c.Client.Call("Plugin.ListJobs", "", &resp)
	return resp, err
}

func (c *FeedSourceRPCClient) FetchBundle(jobID string) (*finance.FeedBundle, error) {
	var resp BundleReply
	if err := c.Client.Call("Plugin.FetchBundle", jobID, &resp); err != nil {
		return nil, err
	}
	if resp.NotFound {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	var b finance.FeedBundle
	if err := json.Unmarshal(resp.Bundle, &b); err != nil {
		return nil, fmt.Errorf("decode plugin bundle: %w", err)
	}
	return &b, nil
}

type FeedSourceRPCServer struct{ Impl FeedSource }

func (s *FeedSourceRPCServer) Init(config map[string]string, resp *interface{}) error {
	return s.Impl.Init(config)
}

func (s *FeedSourceRPCServer) ListJobs(_ string, resp *[]finance.Job) error {
	jobs, err := s.Impl.ListJobs()
	if err != nil {
		return err
	}
	*resp = jobs
	return nil
}

func (s *FeedSourceRPCServer) FetchBundle(jobID string, resp *BundleReply) error {
	b, err := s.Impl.FetchBundle(jobID)
	if errors.Is(err, ErrJobNotFound) {
		resp.NotFound = true
		return nil
	}
	if err != nil {
		return err
	}
	if b == nil {
		b = &finance.FeedBundle{JobID: jobID}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	resp.Bundle = data
	return nil
}
