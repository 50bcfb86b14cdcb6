package cv

import "time"

// Match operation options
type Option func(*matchOptions)

type matchOptions struct {
	tolerance *float64
	region    *Region
	display   string
	timeout   *time.Duration
	interval  *time.Duration
	limit     int
}

// WithTolerance overrides the configured similarity tolerance, in percent.
func WithTolerance(t float64) Option {
	return func(opts *matchOptions) {
		opts.tolerance = &t
	}
}

// WithRegion restricts the search to a sub-region of the frame.
func WithRegion(r Region) Option {
	return func(opts *matchOptions) {
		opts.region = &r
	}
}

// WithDisplay searches on the named display instead of the default.
func WithDisplay(name string) Option {
	return func(opts *matchOptions) {
		opts.display = name
	}
}

// WithTimeout overrides the configured search deadline.
func WithTimeout(d time.Duration) Option {
	return func(opts *matchOptions) {
		opts.timeout = &d
	}
}

// WithInterval overrides the configured retry interval.
func WithInterval(d time.Duration) Option {
	return func(opts *matchOptions) {
		opts.interval = &d
	}
}

// Timing resolves the retry interval and deadline an option list asks
// for, falling back to the given defaults. Callers that run their own
// retry loop around single-attempt matches use this to honor the same
// WithTimeout and WithInterval options the matcher does.
func Timing(interval, timeout time.Duration, opts ...Option) (time.Duration, time.Duration) {
	var o matchOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.interval != nil {
		interval = *o.interval
	}
	if o.timeout != nil {
		timeout = *o.timeout
	}
	return interval, timeout
}

// WithLimit caps the number of results a multi-match returns.
func WithLimit(n int) Option {
	return func(opts *matchOptions) {
		opts.limit = n
	}
}
