package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	domainPlugin "github.com/felixgeelhaar/sitepulse/pkg/domain/plugin"
	"github.com/felixgeelhaar/sitepulse/pkg/feeds"
)

// Source adapts a loaded plugin to feeds.Source. RPC calls cannot be
// cancelled, so a cancelled context abandons the call instead.
type Source struct {
	impl domainPlugin.FeedSource
}

var _ feeds.Source = (*Source)(nil)

func NewSource(impl domainPlugin.FeedSource) *Source {
	return &Source{impl: impl}
}

func (s *Source) ListJobs(ctx context.Context) ([]finance.Job, error) {
	return call(ctx, func() ([]finance.Job, error) {
		jobs, err := s.impl.ListJobs()
		if err != nil {
			return nil, fmt.Errorf("plugin list jobs: %w", err)
		}
		return jobs, nil
	})
}

func (s *Source) FetchBundle(ctx context.Context, jobID string) (finance.FeedBundle, error) {
	return call(ctx, func() (finance.FeedBundle, error) {
		b, err := s.impl.FetchBundle(jobID)
		if errors.Is(err, domainPlugin.ErrJobNotFound) {
			return finance.FeedBundle{}, fmt.Errorf("%w: %s", feeds.ErrJobNotFound, jobID)
		}
		if err != nil {
			return finance.FeedBundle{}, fmt.Errorf("plugin fetch %s: %w", jobID, err)
		}
		if b == nil {
			return finance.FeedBundle{JobID: jobID}, nil
		}
		if b.JobID == "" {
			b.JobID = jobID
		}
		return *b, nil
	})
}

type result[T any] struct {
	v   T
	err error
}

func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	done := make(chan result[T], 1)
	go func() {
		v, err := fn()
		done <- result[T]{v: v, err: err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
