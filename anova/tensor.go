package anova

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// Tensor holds a decomposition of shape (N, K, O): N background samples,
// K = d+2 components and O ensemble outputs. Component 0 is the grand mean,
// components 1..d are the main effects and component d+1 is the residual.
// Data is stored row-major in (sample, component, output) order.
type Tensor struct {
	N, K, O int
	Data    []float64
}

// NewTensor allocates a zero tensor.
func NewTensor(n, k, o int) *Tensor {
	return &Tensor{N: n, K: k, O: o, Data: make([]float64, n*k*o)}
}

// Dims returns the shape of the tensor.
func (t *Tensor) Dims() (n, k, o int) {
	return t.N, t.K, t.O
}

// NumFeatures returns d, the number of main-effect components.
func (t *Tensor) NumFeatures() int {
	return t.K - 2
}

// Residual returns the index of the residual component.
func (t *Tensor) Residual() int {
	return t.K - 1
}

func (t *Tensor) index(n, k, o int) int {
	return (n*t.K+k)*t.O + o
}

// At returns H[n, k, o].
func (t *Tensor) At(n, k, o int) float64 {
	return t.Data[t.index(n, k, o)]
}

// Set assigns H[n, k, o].
func (t *Tensor) Set(n, k, o int, v float64) {
	t.Data[t.index(n, k, o)] = v
}

// Component copies H[:, k, o].
func (t *Tensor) Component(k, o int) []float64 {
	out := make([]float64, t.N)
	for n := range out {
		out[n] = t.At(n, k, o)
	}
	return out
}

// Output copies the N × K slice of output o.
func (t *Tensor) Output(o int) *mat.Dense {
	out := mat.NewDense(t.N, t.K, nil)
	for n := 0; n < t.N; n++ {
		for k := 0; k < t.K; k++ {
			out.Set(n, k, t.At(n, k, o))
		}
	}
	return out
}

// SetOutput writes an N × K matrix into output o.
func (t *Tensor) SetOutput(o int, m mat.Matrix) error {
	r, c := m.Dims()
	if r != t.N {
		return errors.NewDimensionError("Tensor.SetOutput", t.N, r, 0)
	}
	if c != t.K {
		return errors.NewDimensionError("Tensor.SetOutput", t.K, c, 1)
	}
	for n := 0; n < t.N; n++ {
		for k := 0; k < t.K; k++ {
			t.Set(n, k, o, m.At(n, k))
		}
	}
	return nil
}

// Select returns a new tensor holding only the listed components, in order.
func (t *Tensor) Select(components []int) (*Tensor, error) {
	for _, k := range components {
		if k < 0 || k >= t.K {
			return nil, errors.NewValidationError("components", fmt.Sprintf("index out of range [0, %d)", t.K), k)
		}
	}
	out := NewTensor(t.N, len(components), t.O)
	for n := 0; n < t.N; n++ {
		for j, k := range components {
			for o := 0; o < t.O; o++ {
				out.Set(n, j, o, t.At(n, k, o))
			}
		}
	}
	return out, nil
}

// SumComponents returns Σ_{k in [from, to)} H[:, k, :] as an N × O matrix.
func (t *Tensor) SumComponents(from, to int) *mat.Dense {
	out := mat.NewDense(t.N, t.O, nil)
	for n := 0; n < t.N; n++ {
		for k := from; k < to; k++ {
			for o := 0; o < t.O; o++ {
				out.Set(n, o, out.At(n, o)+t.At(n, k, o))
			}
		}
	}
	return out
}

// Prediction returns the sum of all components, the decomposed model output.
func (t *Tensor) Prediction() *mat.Dense {
	return t.SumComponents(0, t.K)
}

// Additive returns the grand mean plus the main effects, the part of the
// output an additive model recovers.
func (t *Tensor) Additive() *mat.Dense {
	return t.SumComponents(0, t.K-1)
}

// Flatten returns an N × (K·O) matrix with columns ordered (component, output).
func (t *Tensor) Flatten() *mat.Dense {
	return mat.NewDense(t.N, t.K*t.O, append([]float64(nil), t.Data...))
}
