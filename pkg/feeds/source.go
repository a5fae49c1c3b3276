// Package feeds fetches job records and financial feed bundles from the
// systems that own them: the project REST API, bundle files on disk, or a
// feed plugin.
package feeds

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
)

var (
	// ErrJobNotFound is returned when the job record does not exist upstream.
	ErrJobNotFound = errors.New("job not found")
	// ErrUnauthorized is returned when the upstream API rejects the credentials.
	ErrUnauthorized = errors.New("feed request unauthorized")
	// ErrInvalidBundle is returned when a bundle document fails schema validation.
	ErrInvalidBundle = errors.New("invalid feed bundle")
	// errNotFound marks a 404 on any feed other than the job record.
	errNotFound = errors.New("feed not found")
)

// Source supplies job records and per-job feed bundles. FetchBundle degrades
// individual failed feeds to nil; it only fails when the job itself is
// unknown or the context ends.
type Source interface {
	ListJobs(ctx context.Context) ([]finance.Job, error)
	FetchBundle(ctx context.Context, jobID string) (finance.FeedBundle, error)
}
