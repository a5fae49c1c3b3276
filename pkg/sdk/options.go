package sdk

import "time"

type options struct {
	timeout      time.Duration
	maxAttempts  int
	initialDelay time.Duration
}

func defaultOptions() options {
	return options{
		timeout:      60 * time.Second,
		maxAttempts:  3,
		initialDelay: 500 * time.Millisecond,
	}
}

// Option configures the SDK client.
type Option func(*options)

// WithTimeout sets the per-call timeout. Portfolio assessments fan out to
// every job, so keep this above the feed client's own timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetry configures retry behaviour for failed calls.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(o *options) {
		if maxAttempts > 0 {
			o.maxAttempts = maxAttempts
		}
		if initialDelay > 0 {
			o.initialDelay = initialDelay
		}
	}
}
