package opt

import "github.com/rs/zerolog"

// Option customises logging and progress reporting of the long-running searches.
type Option func(*options)

type options struct {
	logger   zerolog.Logger
	observer Observer
}

// WithLogger routes search logs to l. Searches are silent by default.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver registers a per-epoch callback for annealing runs.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observer = fn }
}

func buildOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
