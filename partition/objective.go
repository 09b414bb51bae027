package partition

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fdtree/anova"
)

// Objective is a split criterion together with the target matrix it is
// minimised on. The set of objectives is closed; use Lookup to obtain one.
type Objective interface {
	// Name is the registry name of the strategy.
	Name() string
	// Random reports whether splits are drawn at random instead of searched.
	Random() bool
	// Loss returns the loss of a node from the per-column sums and sums of
	// squares of its target rows.
	Loss(sum, sumSq []float64, n int) float64
	// Target builds the N × m fitting target from a decomposition tensor.
	// subset lists the analysed features; nil means all of them.
	Target(h *anova.Tensor, subset []int) (*mat.Dense, error)

	sealed()
}

// sse is the within-node sum of squared errors summed over columns.
func sse(sum, sumSq []float64, n int) float64 {
	if n == 0 {
		return 0
	}
	var loss float64
	for c := range sum {
		loss += sumSq[c] - sum[c]*sum[c]/float64(n)
	}
	if loss < 0 {
		return 0
	}
	return loss
}

// gadgetPDP fits the grand mean plus the main effects of the analysed
// features, so leaves are regions where the additive explanation is flat.
type gadgetPDP struct{}

func (gadgetPDP) Name() string                             { return StrategyGadgetPDP }
func (gadgetPDP) Random() bool                             { return false }
func (gadgetPDP) Loss(sum, sumSq []float64, n int) float64 { return sse(sum, sumSq, n) }
func (gadgetPDP) sealed()                                  {}

func (gadgetPDP) Target(h *anova.Tensor, subset []int) (*mat.Dense, error) {
	components := []int{0}
	if subset == nil {
		for f := 0; f < h.NumFeatures(); f++ {
			components = append(components, f+1)
		}
	} else {
		for _, f := range subset {
			components = append(components, f+1)
		}
	}
	sel, err := h.Select(components)
	if err != nil {
		return nil, err
	}
	return sel.Flatten(), nil
}

// l2coe fits the interaction block, the part of the output no additive
// explanation captures, and minimises its spread within each region.
type l2coe struct{}

func (l2coe) Name() string                             { return StrategyL2CoE }
func (l2coe) Random() bool                             { return false }
func (l2coe) Loss(sum, sumSq []float64, n int) float64 { return sse(sum, sumSq, n) }
func (l2coe) sealed()                                  {}

func (l2coe) Target(h *anova.Tensor, _ []int) (*mat.Dense, error) {
	return h.SumComponents(h.Residual(), h.K), nil
}

// random shares the l2coe target but draws splits uniformly. It is the
// reference that searched strategies must beat.
type random struct{ l2coe }

func (random) Name() string { return StrategyRandom }
func (random) Random() bool { return true }

// cart fits the decomposed model output itself, ignoring interactions.
type cart struct{}

func (cart) Name() string                             { return StrategyCART }
func (cart) Random() bool                             { return false }
func (cart) Loss(sum, sumSq []float64, n int) float64 { return sse(sum, sumSq, n) }
func (cart) sealed()                                  {}

func (cart) Target(h *anova.Tensor, _ []int) (*mat.Dense, error) {
	return h.Prediction(), nil
}
