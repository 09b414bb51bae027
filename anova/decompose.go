// Package anova computes interventional ANOVA decompositions of tree
// ensembles.
//
// For every background sample x the ensemble output f(x) is split into a
// grand mean, one main effect per feature and a residual holding every
// interaction. Main effects come from interventional expectations
// E[f | x_i] evaluated directly on the tree structure: splits on feature i
// follow x, every other split is marginalised with the node's cover
// fractions. The cost is linear in trees × nodes × samples and never
// enumerates the background.
package anova

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fdtree/core/parallel"
	"github.com/YuminosukeSato/fdtree/ensemble"
	"github.com/YuminosukeSato/fdtree/pkg/errors"
	"github.com/YuminosukeSato/fdtree/pkg/log"
)

// preparedTree caches what Decompose needs per tree.
type preparedTree struct {
	tree      *ensemble.Tree
	fractions []float64
	mean      float64 // cover-weighted mean of the leaves, unweighted by Tree.Weight
	used      []int
}

// Decompose returns the (N, d+2, O) decomposition tensor of model over the
// background sample. Components are centred so that every non-grand-mean
// component has zero background mean and the components of each sample add
// up to the raw model score exactly.
func Decompose(model *ensemble.Model, background mat.Matrix, opts ...Option) (h *Tensor, err error) {
	defer errors.Recover(&err, "anova.Decompose")

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if model == nil {
		return nil, errors.NewValidationError("model", "must not be nil", nil)
	}
	if background == nil {
		return nil, errors.WithStack(errors.ErrEmptyBackground)
	}
	n, d := background.Dims()
	if n == 0 {
		return nil, errors.WithStack(errors.ErrEmptyBackground)
	}
	if d != model.NumFeatures {
		return nil, errors.NewDimensionError("anova.Decompose", model.NumFeatures, d, 1)
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if !o.logit && model.HasLink() {
		return nil, errors.NewValidationError("logit",
			"a model with a link function is decomposed on its raw score, enable logit", o.logit)
	}
	if o.backgroundCovers {
		model = model.Clone()
		if err := model.RecomputeCovers(background); err != nil {
			return nil, err
		}
	}

	trees, err := prepare(model)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With(log.OperationKey, log.OperationDecompose)
	logger.Info("Decomposition started",
		log.SamplesKey, n,
		log.FeaturesKey, d,
		log.OutputsKey, model.NumOutputs,
		log.TreesKey, len(trees),
	)
	start := time.Now()

	h = NewTensor(n, d+2, model.NumOutputs)
	work := func(from, to int) error {
		x := make([]float64, d)
		for s := from; s < to; s++ {
			mat.Row(x, s, background)
			accumulate(h, s, x, trees)
		}
		return nil
	}
	if o.parallel {
		err = parallel.ParallelizeErr(n, o.workers, work)
	} else {
		err = work(0, n)
	}
	if err != nil {
		return nil, err
	}

	for out := 0; out < model.NumOutputs; out++ {
		center(h, out, model.Base(out))
	}

	for s := 0; s < n; s++ {
		row := h.Data[s*h.K*h.O : (s+1)*h.K*h.O]
		if err := errors.CheckNumericalStability("anova.Decompose", row, s); err != nil {
			return nil, err
		}
	}

	logger.Info("Decomposition completed",
		log.ComponentsKey, h.K,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return h, nil
}

func prepare(model *ensemble.Model) ([]preparedTree, error) {
	trees := make([]preparedTree, len(model.Trees))
	for i := range model.Trees {
		t := &model.Trees[i]
		fractions, err := t.LeftFractions()
		if err != nil {
			return nil, err
		}
		trees[i] = preparedTree{
			tree:      t,
			fractions: fractions,
			used:      t.UsedFeatures(),
		}
		trees[i].mean = conditional(t, fractions, 0, -1, nil)
	}
	return trees, nil
}

// accumulate writes the uncentred terms of sample s: the weighted tree
// outputs into the residual slot and g_i(x) - E[f] into each main effect.
func accumulate(h *Tensor, s int, x []float64, trees []preparedTree) {
	res := h.Residual()
	for i := range trees {
		pt := &trees[i]
		w, c := pt.tree.Weight, pt.tree.Class

		h.Set(s, res, c, h.At(s, res, c)+pt.tree.Predict(x))
		for _, f := range pt.used {
			g := conditional(pt.tree, pt.fractions, 0, f, x)
			h.Set(s, 1+f, c, h.At(s, 1+f, c)+w*(g-pt.mean))
		}
	}
}

// conditional returns E[tree(X) | X_feature = x_feature] below node id.
// feature -1 yields the unconditional expectation.
func conditional(t *ensemble.Tree, fractions []float64, id, feature int, x []float64) float64 {
	node := &t.Nodes[id]
	if node.IsLeaf() {
		return node.LeafValue
	}
	if node.SplitFeature == feature {
		if node.GoesLeft(x[feature]) {
			return conditional(t, fractions, node.LeftChild, feature, x)
		}
		return conditional(t, fractions, node.RightChild, feature, x)
	}

	p := fractions[id]
	var v float64
	if p > 0 {
		v += p * conditional(t, fractions, node.LeftChild, feature, x)
	}
	if p < 1 {
		v += (1 - p) * conditional(t, fractions, node.RightChild, feature, x)
	}
	return v
}

// center turns the accumulated terms of output o into the final components.
// On entry the residual slot holds the summed tree outputs without base.
func center(h *Tensor, o int, base float64) {
	n := float64(h.N)
	res := h.Residual()

	var fMean float64
	for s := 0; s < h.N; s++ {
		fMean += h.At(s, res, o) + base
	}
	fMean /= n

	for k := 1; k < res; k++ {
		var m float64
		for s := 0; s < h.N; s++ {
			m += h.At(s, k, o)
		}
		m /= n
		if m == 0 {
			continue
		}
		for s := 0; s < h.N; s++ {
			h.Set(s, k, o, h.At(s, k, o)-m)
		}
	}

	for s := 0; s < h.N; s++ {
		f := h.At(s, res, o) + base
		r := f - fMean
		for k := 1; k < res; k++ {
			r -= h.At(s, k, o)
		}
		h.Set(s, 0, o, fMean)
		h.Set(s, res, o, r)
	}
}
