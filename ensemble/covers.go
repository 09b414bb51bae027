package ensemble

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// LeftFraction returns the share of the cover of internal node i that was
// routed to its left child, cover(left) / (cover(left) + cover(right)).
// A node whose children carry no cover cannot be marginalised over and is a
// configuration error.
func (t *Tree) LeftFraction(i int) (float64, error) {
	node := &t.Nodes[i]
	if node.IsLeaf() {
		return 0, errors.NewValueError("Tree.LeftFraction", fmt.Sprintf("node %d is a leaf", i))
	}
	left := t.Nodes[node.LeftChild].Cover
	right := t.Nodes[node.RightChild].Cover
	if left < 0 || right < 0 || left+right <= 0 {
		return 0, missingCover(t.TreeIndex, i, left+right)
	}
	return left / (left + right), nil
}

// LeftFractions returns LeftFraction for every node; leaves hold 0.
func (t *Tree) LeftFractions() ([]float64, error) {
	fractions := make([]float64, len(t.Nodes))
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			continue
		}
		f, err := t.LeftFraction(i)
		if err != nil {
			return nil, err
		}
		fractions[i] = f
	}
	return fractions, nil
}

// HasCovers reports whether every internal node of every tree has usable
// branch fractions.
func (m *Model) HasCovers() bool {
	for i := range m.Trees {
		if _, err := m.Trees[i].LeftFractions(); err != nil {
			return false
		}
	}
	return true
}

// CheckCovers returns the first missing-cover error of the model, or nil.
func (m *Model) CheckCovers() error {
	for i := range m.Trees {
		if _, err := m.Trees[i].LeftFractions(); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeCovers replaces every node cover with the number of rows of X
// routed through it. Subtrees no row reaches get an even split below their
// root so that fractions stay defined there, while the fraction leading into
// them remains zero.
func (m *Model) RecomputeCovers(X mat.Matrix) error {
	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return errors.NewDimensionError("Model.RecomputeCovers", m.NumFeatures, cols, 1)
	}
	if rows == 0 {
		return errors.ErrEmptyBackground
	}
	if err := m.Validate(); err != nil {
		return err
	}

	features := make([]float64, cols)
	for t := range m.Trees {
		tree := &m.Trees[t]
		for i := range tree.Nodes {
			tree.Nodes[i].Cover = 0
		}
		for r := 0; r < rows; r++ {
			mat.Row(features, r, X)
			tree.route(features, func(id int) { tree.Nodes[id].Cover++ })
		}
		tree.fillUnreached(0)
	}
	return nil
}

// route calls visit on every node from the root to the leaf reached by features.
func (t *Tree) route(features []float64, visit func(id int)) {
	nodeID := 0
	for steps := 0; steps <= len(t.Nodes) && nodeID >= 0 && nodeID < len(t.Nodes); steps++ {
		visit(nodeID)
		node := &t.Nodes[nodeID]
		if node.IsLeaf() {
			return
		}
		if node.GoesLeft(features[node.SplitFeature]) {
			nodeID = node.LeftChild
		} else {
			nodeID = node.RightChild
		}
	}
}

func (t *Tree) fillUnreached(id int) {
	node := &t.Nodes[id]
	if node.IsLeaf() {
		return
	}
	left, right := &t.Nodes[node.LeftChild], &t.Nodes[node.RightChild]
	if left.Cover+right.Cover <= 0 {
		left.Cover, right.Cover = 0.5, 0.5
	}
	t.fillUnreached(node.LeftChild)
	t.fillUnreached(node.RightChild)
}

func missingCover(tree, node int, got float64) error {
	err := errors.NewValidationError("cover",
		fmt.Sprintf("tree %d node %d has no branch-fraction metadata", tree, node), got)
	return errors.Mark(err, errors.ErrMissingCover)
}
