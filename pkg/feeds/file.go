package feeds

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
)

const bundleExt = ".json"

// FileSource serves bundles stored as <jobID>.json files in a directory.
type FileSource struct {
	dir string
}

// NewFileSource returns a source reading bundles from dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// ListJobs returns the job record of every bundle in the directory, sorted by ID.
// Bundles without a job record contribute a job carrying only its ID.
func (s *FileSource) ListJobs(ctx context.Context) ([]finance.Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read bundle dir: %w", err)
	}

	var jobs []finance.Job
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || filepath.Ext(e.Name()) != bundleExt {
			continue
		}
		id := strings.TrimSuffix(e.Name(), bundleExt)
		b, err := s.FetchBundle(ctx, id)
		if err != nil {
			return nil, err
		}
		if b.Job != nil {
			jobs = append(jobs, *b.Job)
		} else {
			jobs = append(jobs, finance.Job{ID: id, Name: id})
		}
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

// FetchBundle reads and validates the bundle for jobID.
func (s *FileSource) FetchBundle(ctx context.Context, jobID string) (finance.FeedBundle, error) {
	if err := ctx.Err(); err != nil {
		return finance.FeedBundle{}, err
	}
	if jobID == "" || jobID != filepath.Base(jobID) || strings.HasPrefix(jobID, ".") {
		return finance.FeedBundle{}, fmt.Errorf("%w: %q", ErrJobNotFound, jobID)
	}

	path := filepath.Join(s.dir, jobID+bundleExt)
	data, err := os.ReadFile(path) // #nosec G304 -- jobID is a bare file name within dir
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return finance.FeedBundle{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return finance.FeedBundle{}, fmt.Errorf("read bundle %s: %w", jobID, err)
	}

	b, err := DecodeBundle(data)
	if err != nil {
		return finance.FeedBundle{}, fmt.Errorf("bundle %s: %w", jobID, err)
	}
	if b.JobID != jobID {
		return finance.FeedBundle{}, fmt.Errorf("%w: file %s holds job %q", ErrInvalidBundle, jobID+bundleExt, b.JobID)
	}
	return b, nil
}
