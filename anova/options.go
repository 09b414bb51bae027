package anova

import (
	"github.com/YuminosukeSato/fdtree/pkg/log"
)

type options struct {
	logit            bool
	backgroundCovers bool
	parallel         bool
	workers          int
	logger           log.Logger
}

func defaultOptions() options {
	return options{
		logit:    true,
		parallel: true,
		logger:   log.GetLoggerWithName("anova"),
	}
}

// Option configures Decompose.
type Option func(*options)

// WithLogit selects the raw (pre-activation) score as the decomposed output.
// Models with a link function only decompose their raw score, so
// WithLogit(false) on such a model is rejected.
func WithLogit(logit bool) Option {
	return func(o *options) { o.logit = logit }
}

// WithBackgroundCovers recomputes node covers from the routing of the
// background sample before decomposing, so that branch fractions follow the
// background distribution. The covers are recomputed on a copy; the caller's
// model is left untouched.
func WithBackgroundCovers(enabled bool) Option {
	return func(o *options) { o.backgroundCovers = enabled }
}

// WithParallel toggles the per-sample fan-out.
func WithParallel(enabled bool) Option {
	return func(o *options) { o.parallel = enabled }
}

// WithWorkers caps the number of goroutines; 0 means one per CPU.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
