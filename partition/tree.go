// Package partition grows shallow axis-aligned trees that split the input
// space into regions where a decomposition target is nearly constant.
//
// The tree is strategy agnostic: a strategy only chooses the target matrix
// (see Prepare) and the node loss. Growth is greedy, depth first and fully
// deterministic, including the random strategy whose draws are keyed by the
// position of the node in the tree.
package partition

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/fdtree/core/model"
	"github.com/YuminosukeSato/fdtree/pkg/errors"
	"github.com/YuminosukeSato/fdtree/pkg/log"
)

// Node is an entry of the tree arena. Children are referenced by index.
type Node struct {
	// Feature is the split feature, -1 for a leaf.
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Depth     int
	// Impurity is the node loss divided by the number of root rows.
	Impurity float64
	NSamples int
	// Splits and Objectives hold, per feature, the evaluated thresholds and
	// the resulting child impurity. Only filled when SaveLosses is set.
	Splits     [][]float64
	Objectives [][]float64
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Feature < 0
}

var (
	_ model.Partitioner = (*Tree)(nil)
	_ model.Persistable = (*Tree)(nil)
)

// Tree is a partitioning tree. Nodes are stored in preorder, left subtree
// before right, so leaves appear in left-to-right order.
type Tree struct {
	model.BaseEstimator

	Strategy     string
	Config       Config
	FeatureNames []string
	Nodes        []Node
	// NumTargets is the number of target columns seen by Fit.
	NumTargets int

	objective Objective
	logger    log.Logger
}

// New returns an unfitted tree for strategy. featureNames may be nil, in
// which case names are generated at fit time.
func New(strategy string, featureNames []string, opts ...Option) (*Tree, error) {
	obj, err := Lookup(strategy)
	if err != nil {
		return nil, err
	}
	t := &Tree{
		Strategy:     strategy,
		Config:       DefaultConfig(),
		FeatureNames: append([]string(nil), featureNames...),
		objective:    obj,
		logger:       log.GetLoggerWithName("partition"),
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.Config.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// TotalImpurity returns the sum of the leaf impurities.
func (t *Tree) TotalImpurity() float64 {
	var total float64
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			total += t.Nodes[i].Impurity
		}
	}
	return total
}

// RootImpurity returns the impurity before any split.
func (t *Tree) RootImpurity() float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	return t.Nodes[0].Impurity
}

// NumLeaves returns the number of groups.
func (t *Tree) NumLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// fitState is the working set of one Fit call.
type fitState struct {
	x     *mat.Dense
	y     *mat.Dense
	rootN float64
	// scratch
	leftSum, leftSq   []float64
	rightSum, rightSq []float64
}

type candidate struct {
	feature   int
	threshold float64
	loss      float64
}

// Fit grows the tree on the features X (N × p) and the strategy target
// Y (N × m).
func (t *Tree) Fit(X, Y mat.Matrix) (err error) {
	defer errors.Recover(&err, "partition.Fit")
	t.Reset()

	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	yn, m := Y.Dims()
	if yn != n {
		return errors.NewDimensionError("partition.Fit", n, yn, 0)
	}
	if m == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	if len(t.FeatureNames) == 0 {
		t.FeatureNames = make([]string, p)
		for j := range t.FeatureNames {
			t.FeatureNames[j] = fmt.Sprintf("x%d", j)
		}
	} else if len(t.FeatureNames) != p {
		return errors.NewDimensionError("partition.Fit", len(t.FeatureNames), p, 1)
	}
	if err := errors.CheckMatrix("partition.Fit", Y, n, m); err != nil {
		return err
	}
	if t.objective == nil {
		if t.objective, err = Lookup(t.Strategy); err != nil {
			return err
		}
	}
	if t.logger == nil {
		t.logger = log.GetLoggerWithName("partition")
	}

	// Centring the target leaves every SSE unchanged and keeps the sums of
	// squares small.
	y := mat.DenseCopyOf(Y)
	col := make([]float64, n)
	for c := 0; c < m; c++ {
		mat.Col(col, c, y)
		mean := stat.Mean(col, nil)
		for r := 0; r < n; r++ {
			y.Set(r, c, col[r]-mean)
		}
	}

	fs := &fitState{
		x:        mat.DenseCopyOf(X),
		y:        y,
		rootN:    float64(n),
		leftSum:  make([]float64, m),
		leftSq:   make([]float64, m),
		rightSum: make([]float64, m),
		rightSq:  make([]float64, m),
	}

	logger := t.logger.With(log.OperationKey, log.OperationFit, log.StrategyKey, t.Strategy)
	logger.Info("Partition fit started",
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.OutputsKey, m,
		log.DepthKey, t.Config.MaxDepth,
	)
	start := time.Now()

	t.Reset()
	t.Nodes = t.Nodes[:0]
	t.NumTargets = m
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	t.grow(fs, logger, rows, 0, 0)
	t.SetFitted()

	logger.Info("Partition fit completed",
		log.LeavesKey, t.NumLeaves(),
		log.ImpurityKey, t.TotalImpurity(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// grow appends the subtree of rows at the given depth and heap position and
// returns the index of its root.
func (t *Tree) grow(fs *fitState, logger log.Logger, rows []int, depth int, pos uint64) int {
	sum, sumSq := fs.stats(rows)
	impurity := t.objective.Loss(sum, sumSq, len(rows)) / fs.rootN

	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{
		Feature:  -1,
		Left:     -1,
		Right:    -1,
		Depth:    depth,
		Impurity: impurity,
		NSamples: len(rows),
	})

	cfg := t.Config
	if depth >= cfg.MaxDepth || len(rows) < 2*cfg.SamplesLeaf || impurity <= cfg.NegligibleImpurity {
		return id
	}

	best, ok := t.search(fs, id, rows, sum, sumSq, pos)
	if !ok {
		return id
	}
	childImpurity := best.loss / fs.rootN
	if (impurity-childImpurity)/impurity < cfg.RelativeDecrease {
		return id
	}

	var left, right []int
	for _, r := range rows {
		if fs.x.At(r, best.feature) <= best.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	logger.Debug("Node split",
		log.NodeKey, id,
		log.DepthKey, depth,
		log.SplitFeatureKey, t.FeatureNames[best.feature],
		log.ThresholdKey, best.threshold,
		log.ImpurityKey, childImpurity,
	)

	t.Nodes[id].Feature = best.feature
	t.Nodes[id].Threshold = best.threshold
	l := t.grow(fs, logger, left, depth+1, 2*pos+1)
	r := t.grow(fs, logger, right, depth+1, 2*pos+2)
	t.Nodes[id].Left = l
	t.Nodes[id].Right = r
	return id
}

// search evaluates every admissible split of rows and returns the chosen one.
// Searched strategies take the minimum loss with ties resolved to the lowest
// feature and then the lowest threshold; the random strategy draws uniformly
// among admissible candidates.
func (t *Tree) search(fs *fitState, id int, rows []int, sum, sumSq []float64, pos uint64) (candidate, bool) {
	_, p := fs.x.Dims()
	n := len(rows)
	random := t.objective.Random()
	save := t.Config.SaveLosses
	if save {
		t.Nodes[id].Splits = make([][]float64, p)
		t.Nodes[id].Objectives = make([][]float64, p)
	}

	var (
		best       candidate
		found      bool
		admissible []candidate
	)
	order := make([]int, n)
	values := make([]float64, n)
	for f := 0; f < p; f++ {
		copy(order, rows)
		sort.SliceStable(order, func(a, b int) bool {
			return fs.x.At(order[a], f) < fs.x.At(order[b], f)
		})
		for i, r := range order {
			values[i] = fs.x.At(r, f)
		}
		if values[0] == values[n-1] {
			continue
		}

		thresholds := t.thresholds(values)
		clear(fs.leftSum)
		clear(fs.leftSq)
		i := 0
		for _, th := range thresholds {
			for i < n && values[i] <= th {
				fs.add(order[i])
				i++
			}
			if i < t.Config.SamplesLeaf || n-i < t.Config.SamplesLeaf {
				continue
			}
			for c := range sum {
				fs.rightSum[c] = sum[c] - fs.leftSum[c]
				fs.rightSq[c] = sumSq[c] - fs.leftSq[c]
			}
			loss := t.objective.Loss(fs.leftSum, fs.leftSq, i) + t.objective.Loss(fs.rightSum, fs.rightSq, n-i)
			c := candidate{feature: f, threshold: th, loss: loss}

			if save {
				t.Nodes[id].Splits[f] = append(t.Nodes[id].Splits[f], th)
				t.Nodes[id].Objectives[f] = append(t.Nodes[id].Objectives[f], loss/fs.rootN)
			}
			if random {
				admissible = append(admissible, c)
				continue
			}
			if !found || c.loss < best.loss {
				best, found = c, true
			}
		}
	}

	if random {
		if len(admissible) == 0 {
			return candidate{}, false
		}
		rng := rand.New(rand.NewPCG(t.Config.Seed, pos))
		return admissible[rng.IntN(len(admissible))], true
	}
	return best, found
}

// thresholds returns the candidate thresholds of sorted node values: the
// midpoints between consecutive distinct values, reduced to a quantile grid
// when there are more than MaxCandidates of them.
func (t *Tree) thresholds(values []float64) []float64 {
	var mids []float64
	for i := 1; i < len(values); i++ {
		if values[i] != values[i-1] {
			mids = append(mids, (values[i]+values[i-1])/2)
		}
	}
	k := t.Config.MaxCandidates
	if k <= 0 || len(mids) <= k {
		return mids
	}
	grid := make([]float64, 0, k)
	for q := 1; q <= k; q++ {
		v := stat.Quantile(float64(q)/float64(k+1), stat.Empirical, mids, nil)
		if len(grid) == 0 || v > grid[len(grid)-1] {
			grid = append(grid, v)
		}
	}
	return grid
}

func (fs *fitState) stats(rows []int) (sum, sumSq []float64) {
	_, m := fs.y.Dims()
	sum = make([]float64, m)
	sumSq = make([]float64, m)
	for _, r := range rows {
		for c := 0; c < m; c++ {
			v := fs.y.At(r, c)
			sum[c] += v
			sumSq[c] += v * v
		}
	}
	return sum, sumSq
}

func (fs *fitState) add(r int) {
	for c := range fs.leftSum {
		v := fs.y.At(r, c)
		fs.leftSum[c] += v
		fs.leftSq[c] += v * v
	}
}
