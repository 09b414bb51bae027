package anova

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fdtree/ensemble"
	"github.com/YuminosukeSato/fdtree/metrics"
	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// DefaultTolerance is the relative tolerance of CheckAdditivity.
const DefaultTolerance = 1e-6

// CheckAdditivity verifies that, for every sample and output, the components
// of h add up to the raw model score within rtol (relative to max(1, |f|)).
func CheckAdditivity(h *Tensor, model *ensemble.Model, background mat.Matrix, rtol float64) error {
	raw, err := model.PredictRaw(background)
	if err != nil {
		return err
	}
	r, c := raw.Dims()
	if r != h.N {
		return errors.NewDimensionError("anova.CheckAdditivity", h.N, r, 0)
	}
	if c != h.O {
		return errors.NewDimensionError("anova.CheckAdditivity", h.O, c, 1)
	}

	pred := h.Prediction()
	for s := 0; s < r; s++ {
		for o := 0; o < c; o++ {
			want, got := raw.At(s, o), pred.At(s, o)
			if math.Abs(want-got) > rtol*math.Max(1, math.Abs(want)) {
				return errors.NewValueError("anova.CheckAdditivity",
					fmt.Sprintf("sample %d output %d: components sum to %g, model scores %g", s, o, got, want))
			}
		}
	}
	return nil
}

// CheckCentered verifies that every component except the grand mean has a
// background mean within atol of zero.
func CheckCentered(h *Tensor, atol float64) error {
	for k := 1; k < h.K; k++ {
		for o := 0; o < h.O; o++ {
			var m float64
			for s := 0; s < h.N; s++ {
				m += h.At(s, k, o)
			}
			m /= float64(h.N)
			if math.Abs(m) > atol {
				return errors.NewValueError("anova.CheckCentered",
					fmt.Sprintf("component %d output %d has mean %g", k, o, m))
			}
		}
	}
	return nil
}

// Fidelity returns the R² of the additive part (grand mean plus main
// effects) against the full decomposed output, averaged over outputs.
// A value of 1 means the model has no interactions on the background.
func Fidelity(h *Tensor) (float64, error) {
	return metrics.R2Matrix(h.Prediction(), h.Additive())
}

// Importance returns, per output, the background variance of each main
// effect and of the residual (components 1..K-1), a global summary of how
// much each feature and the interactions contribute.
func Importance(h *Tensor) *mat.Dense {
	out := mat.NewDense(h.K-1, h.O, nil)
	for k := 1; k < h.K; k++ {
		for o := 0; o < h.O; o++ {
			var ss float64
			for s := 0; s < h.N; s++ {
				v := h.At(s, k, o)
				ss += v * v
			}
			out.Set(k-1, o, ss/float64(h.N))
		}
	}
	return out
}
