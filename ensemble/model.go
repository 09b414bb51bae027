// Package ensemble holds the tree-structure primitives of additive tree
// ensembles (gradient boosting and random forests) together with loaders for
// the LightGBM and XGBoost JSON dump formats.
//
// Trees are stored as node arenas: children are referenced by index and the
// root is node 0. Every node carries a Cover, the training mass routed through
// it, which the decomposition engine uses as branch probabilities.
package ensemble

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fdtree/core/parallel"
	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// NodeType represents the type of a tree node
type NodeType int

const (
	// LeafNode represents a terminal node with a value
	LeafNode NodeType = iota
	// NumericalNode represents a node with numerical split
	NumericalNode
)

// DecisionType is the comparison used by a numerical split.
type DecisionType int

const (
	// DecisionLessEqual sends x <= threshold left (LightGBM).
	DecisionLessEqual DecisionType = iota
	// DecisionLess sends x < threshold left (XGBoost).
	DecisionLess
)

// Node represents a single node in a decision tree arena.
type Node struct {
	NodeID     int
	LeftChild  int // -1 for leaves
	RightChild int // -1 for leaves
	NodeType   NodeType

	// Split information (for non-leaf nodes)
	SplitFeature int
	Threshold    float64
	Decision     DecisionType
	DefaultLeft  bool // Default direction for missing values

	// Leaf information (for leaf nodes)
	LeafValue float64

	// Cover is the number of samples (LightGBM) or hessian mass (XGBoost)
	// routed through the node during training.
	Cover float64
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// GoesLeft reports whether value is routed to the left child.
func (n *Node) GoesLeft(value float64) bool {
	if math.IsNaN(value) {
		return n.DefaultLeft
	}
	if n.Decision == DecisionLess {
		return value < n.Threshold
	}
	return value <= n.Threshold
}

// Tree represents a single decision tree in the ensemble
type Tree struct {
	TreeIndex int
	Nodes     []Node // index 0 is the root

	// Class is the output column the tree contributes to.
	Class int
	// Weight multiplies the tree output (1/T for averaged forests).
	Weight float64
}

// Predict routes features to a leaf and returns its weighted value.
func (t *Tree) Predict(features []float64) float64 {
	return t.Weight * t.rawPredict(features)
}

// Leaf returns the index of the leaf reached by features.
func (t *Tree) Leaf(features []float64) int {
	nodeID := 0
	// Validate guarantees acyclicity; the step bound protects unvalidated trees.
	for steps := 0; steps <= len(t.Nodes) && nodeID >= 0 && nodeID < len(t.Nodes); steps++ {
		node := &t.Nodes[nodeID]
		if node.IsLeaf() {
			return nodeID
		}
		if node.GoesLeft(features[node.SplitFeature]) {
			nodeID = node.LeftChild
		} else {
			nodeID = node.RightChild
		}
	}
	return -1
}

func (t *Tree) rawPredict(features []float64) float64 {
	leaf := t.Leaf(features)
	if leaf < 0 {
		return 0
	}
	return t.Nodes[leaf].LeafValue
}

// Validate checks that the arena forms a tree rooted at node 0: every child
// index is in range, every node is reached at most once, and split features
// lie in [0, numFeatures).
func (t *Tree) Validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.NewModelError("Tree.Validate", "tree has no nodes", nil)
	}

	seen := make([]bool, len(t.Nodes))
	stack := []int{0}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if id < 0 || id >= len(t.Nodes) {
			return errors.NewValidationError("child", "node index out of range", id)
		}
		if seen[id] {
			return errors.NewValidationError("child", "node reached twice, arena is not a tree", id)
		}
		seen[id] = true

		node := &t.Nodes[id]
		if node.IsLeaf() {
			continue
		}
		if node.LeftChild == -1 || node.RightChild == -1 {
			return errors.NewValidationError("child", "internal node must have two children", id)
		}
		if node.SplitFeature < 0 || node.SplitFeature >= numFeatures {
			return errors.NewValidationError("split_feature", "feature index out of range", node.SplitFeature)
		}
		stack = append(stack, node.RightChild, node.LeftChild)
	}
	return nil
}

// UsedFeatures returns the distinct split features of the tree in ascending order.
func (t *Tree) UsedFeatures() []int {
	var used []int
	mark := map[int]bool{}
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.IsLeaf() || mark[n.SplitFeature] {
			continue
		}
		mark[n.SplitFeature] = true
		used = append(used, n.SplitFeature)
	}
	sort.Ints(used)
	return used
}

// ObjectiveType represents the objective function type
type ObjectiveType string

const (
	RegressionL2      ObjectiveType = "regression"
	BinaryLogistic    ObjectiveType = "binary"
	MulticlassSoftmax ObjectiveType = "multiclass"
)

// LinkType is the activation applied to the raw ensemble score.
type LinkType int

const (
	LinkIdentity LinkType = iota
	LinkSigmoid
	LinkSoftmax
)

// Model represents a complete tree ensemble.
type Model struct {
	Trees        []Tree
	NumFeatures  int
	NumOutputs   int
	FeatureNames []string

	// BaseScore is added to every output before the link (margin space).
	BaseScore []float64

	Objective     ObjectiveType
	Link          LinkType
	AverageOutput bool

	// Source records the dump format the model was loaded from.
	Source string
}

// HasLink reports whether Predict applies a non-identity activation.
func (m *Model) HasLink() bool {
	return m.Link != LinkIdentity
}

// Validate checks model-level shape information and every tree.
func (m *Model) Validate() error {
	if m.NumFeatures <= 0 {
		return errors.NewValidationError("num_features", "must be positive", m.NumFeatures)
	}
	if m.NumOutputs <= 0 {
		return errors.NewValidationError("num_outputs", "must be positive", m.NumOutputs)
	}
	if len(m.BaseScore) != 0 && len(m.BaseScore) != m.NumOutputs {
		return errors.NewDimensionError("Model.Validate", m.NumOutputs, len(m.BaseScore), 1)
	}
	if len(m.FeatureNames) != 0 && len(m.FeatureNames) != m.NumFeatures {
		return errors.NewDimensionError("Model.Validate", m.NumFeatures, len(m.FeatureNames), 1)
	}
	for i := range m.Trees {
		t := &m.Trees[i]
		if t.Class < 0 || t.Class >= m.NumOutputs {
			return errors.NewValidationError("class", "tree output index out of range", t.Class)
		}
		if err := t.Validate(m.NumFeatures); err != nil {
			return errors.Wrapf(err, "tree %d", i)
		}
	}
	return nil
}

// Base returns the base score of output o.
func (m *Model) Base(o int) float64 {
	if len(m.BaseScore) == 0 {
		return 0
	}
	return m.BaseScore[o]
}

// PredictRaw returns the pre-activation score, N × NumOutputs.
func (m *Model) PredictRaw(X mat.Matrix) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return nil, errors.NewDimensionError("Model.PredictRaw", m.NumFeatures, cols, 1)
	}
	if rows == 0 {
		return nil, errors.ErrEmptyData
	}

	out := mat.NewDense(rows, m.NumOutputs, nil)
	parallel.ParallelizeWithThreshold(rows, 256, func(start, end int) {
		features := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(features, i, X)
			for o := 0; o < m.NumOutputs; o++ {
				out.Set(i, o, m.Base(o))
			}
			for t := range m.Trees {
				tree := &m.Trees[t]
				out.Set(i, tree.Class, out.At(i, tree.Class)+tree.Predict(features))
			}
		}
	})
	return out, nil
}

// Predict returns the post-link output: sigmoid for binary logistic models,
// softmax for multiclass models, the raw score otherwise.
func (m *Model) Predict(X mat.Matrix) (*mat.Dense, error) {
	raw, err := m.PredictRaw(X)
	if err != nil {
		return nil, err
	}

	rows, outputs := raw.Dims()
	switch m.Link {
	case LinkSigmoid:
		raw.Apply(func(_, _ int, v float64) float64 { return sigmoid(v) }, raw)
	case LinkSoftmax:
		for i := 0; i < rows; i++ {
			row := raw.RawRowView(i)
			lse := errors.LogSumExp(row)
			for o := 0; o < outputs; o++ {
				row[o] = math.Exp(row[o] - lse)
			}
		}
	}
	return raw, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + errors.StabilizeExp(-x))
}
