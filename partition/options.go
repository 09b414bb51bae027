package partition

import (
	"github.com/YuminosukeSato/fdtree/pkg/errors"
	"github.com/YuminosukeSato/fdtree/pkg/log"
)

// Config holds the hyperparameters of a partition tree.
type Config struct {
	// MaxDepth is the maximum depth of a leaf; 0 keeps the root as the only leaf.
	MaxDepth int
	// SamplesLeaf is the minimum number of rows of every leaf.
	SamplesLeaf int
	// NegligibleImpurity stops splitting nodes whose impurity is at most this value.
	NegligibleImpurity float64
	// RelativeDecrease stops splitting when the best split reduces the node
	// impurity by less than this fraction.
	RelativeDecrease float64
	// SaveLosses keeps every evaluated (threshold, objective) pair per node.
	SaveLosses bool
	// MaxCandidates caps the thresholds per feature with a quantile grid;
	// 0 evaluates every midpoint between distinct values.
	MaxCandidates int
	// Seed drives the random strategy.
	Seed uint64
}

// DefaultConfig returns the default hyperparameters.
func DefaultConfig() Config {
	return Config{
		MaxDepth:           3,
		SamplesLeaf:        20,
		NegligibleImpurity: 1e-5,
		RelativeDecrease:   0.01,
	}
}

// Validate rejects hyperparameters that cannot produce a tree.
func (c Config) Validate() error {
	switch {
	case c.MaxDepth < 0:
		return errors.NewValidationError("max_depth", "must be non-negative", c.MaxDepth)
	case c.SamplesLeaf < 1:
		return errors.NewValidationError("samples_leaf", "must be at least 1", c.SamplesLeaf)
	case c.NegligibleImpurity < 0:
		return errors.NewValidationError("negligible_impurity", "must be non-negative", c.NegligibleImpurity)
	case c.RelativeDecrease < 0:
		return errors.NewValidationError("relative_decrease", "must be non-negative", c.RelativeDecrease)
	case c.MaxCandidates < 0:
		return errors.NewValidationError("max_candidates", "must be non-negative", c.MaxCandidates)
	}
	return nil
}

// Option configures a Tree.
type Option func(*Tree)

// WithConfig replaces every hyperparameter at once.
func WithConfig(c Config) Option {
	return func(t *Tree) { t.Config = c }
}

// WithMaxDepth sets the maximum depth.
func WithMaxDepth(d int) Option {
	return func(t *Tree) { t.Config.MaxDepth = d }
}

// WithSamplesLeaf sets the minimum leaf size.
func WithSamplesLeaf(n int) Option {
	return func(t *Tree) { t.Config.SamplesLeaf = n }
}

// WithNegligibleImpurity sets the impurity below which nodes are not split.
func WithNegligibleImpurity(v float64) Option {
	return func(t *Tree) { t.Config.NegligibleImpurity = v }
}

// WithRelativeDecrease sets the minimum relative impurity decrease of a split.
func WithRelativeDecrease(v float64) Option {
	return func(t *Tree) { t.Config.RelativeDecrease = v }
}

// WithSaveLosses records the split-search cost landscape of every node.
func WithSaveLosses(enabled bool) Option {
	return func(t *Tree) { t.Config.SaveLosses = enabled }
}

// WithMaxCandidates limits the thresholds evaluated per feature.
func WithMaxCandidates(n int) Option {
	return func(t *Tree) { t.Config.MaxCandidates = n }
}

// WithSeed sets the seed of the random strategy.
func WithSeed(seed uint64) Option {
	return func(t *Tree) { t.Config.Seed = seed }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(t *Tree) {
		if l != nil {
			t.logger = l
		}
	}
}
