package partition

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fdtree/anova"
	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// Strategy names.
const (
	StrategyGadgetPDP = "gadget-pdp"
	StrategyL2CoE     = "l2coe"
	StrategyRandom    = "random"
	StrategyCART      = "cart"
)

var registry = map[string]Objective{
	StrategyGadgetPDP: gadgetPDP{},
	StrategyL2CoE:     l2coe{},
	StrategyRandom:    random{},
	StrategyCART:      cart{},
}

// Strategies returns the registered strategy names in sorted order.
func Strategies() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the objective registered under name.
func Lookup(name string) (Objective, error) {
	obj, ok := registry[name]
	if !ok {
		return nil, errors.Mark(
			errors.NewValidationError("strategy", fmt.Sprintf("unknown, expected one of %v", Strategies()), name),
			errors.ErrUnknownStrategy,
		)
	}
	return obj, nil
}

// Prepare builds the fitting target of strategy from the decomposition h.
// Every index of subset must address a feature of h.
func Prepare(strategy string, h *anova.Tensor, subset []int) (*mat.Dense, error) {
	obj, err := Lookup(strategy)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	d := h.NumFeatures()
	for _, f := range subset {
		if f < 0 || f >= d {
			return nil, errors.NewValidationError("subset", fmt.Sprintf("feature index out of range [0, %d)", d), f)
		}
	}
	return obj.Target(h, subset)
}
