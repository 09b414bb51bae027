package partition

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// Constraint is one bound of a region: x[Feature] <= Threshold when
// LessEqual is set, x[Feature] > Threshold otherwise.
type Constraint struct {
	Feature   int
	Name      string
	LessEqual bool
	Threshold float64
}

func (c Constraint) String() string {
	op := ">"
	if c.LessEqual {
		op = "<="
	}
	return fmt.Sprintf("%s %s %.4g", c.Name, op, c.Threshold)
}

// Holds reports whether row satisfies the constraint.
func (c Constraint) Holds(row []float64) bool {
	if c.LessEqual {
		return row[c.Feature] <= c.Threshold
	}
	return !(row[c.Feature] <= c.Threshold)
}

// Region is the set of inputs reaching one leaf.
type Region struct {
	Group       int
	Node        int
	Constraints []Constraint
}

// Contains reports whether row falls in the region.
func (r Region) Contains(row []float64) bool {
	for _, c := range r.Constraints {
		if !c.Holds(row) {
			return false
		}
	}
	return true
}

// Rule renders the region as a conjunction, "all" when unconstrained.
func (r Region) Rule() string {
	if len(r.Constraints) == 0 {
		return "all"
	}
	parts := make([]string, len(r.Constraints))
	for i, c := range r.Constraints {
		parts[i] = c.String()
	}
	return strings.Join(parts, " and ")
}

// Regions returns one region per leaf in group order. Repeated bounds on a
// feature along a path are tightened into a single constraint.
func (t *Tree) Regions() []Region {
	if len(t.Nodes) == 0 {
		return nil
	}
	var regions []Region
	var walk func(id int, path []Constraint)
	walk = func(id int, path []Constraint) {
		node := &t.Nodes[id]
		if node.IsLeaf() {
			regions = append(regions, Region{
				Group:       len(regions),
				Node:        id,
				Constraints: append([]Constraint(nil), path...),
			})
			return
		}
		name := t.featureName(node.Feature)
		walk(node.Left, tighten(path, Constraint{Feature: node.Feature, Name: name, LessEqual: true, Threshold: node.Threshold}))
		walk(node.Right, tighten(path, Constraint{Feature: node.Feature, Name: name, Threshold: node.Threshold}))
	}
	walk(0, nil)
	return regions
}

func tighten(path []Constraint, c Constraint) []Constraint {
	out := append([]Constraint(nil), path...)
	for i := range out {
		if out[i].Feature != c.Feature || out[i].LessEqual != c.LessEqual {
			continue
		}
		if c.LessEqual && c.Threshold < out[i].Threshold || !c.LessEqual && c.Threshold > out[i].Threshold {
			out[i].Threshold = c.Threshold
		}
		return out
	}
	return append(out, c)
}

func (t *Tree) featureName(f int) string {
	if f < len(t.FeatureNames) {
		return t.FeatureNames[f]
	}
	return fmt.Sprintf("x%d", f)
}

// Apply returns the arena index of the leaf reached by row.
func (t *Tree) Apply(row []float64) int {
	id := 0
	for !t.Nodes[id].IsLeaf() {
		node := &t.Nodes[id]
		if row[node.Feature] <= node.Threshold {
			id = node.Left
		} else {
			id = node.Right
		}
	}
	return id
}

// Predict assigns every row of X to a group, the left-to-right ordinal of
// its leaf, and returns the rule of each group.
func (t *Tree) Predict(X mat.Matrix) (groups []int, rules []string, err error) {
	if err := t.RequireFitted("FDTree", "Predict"); err != nil {
		return nil, nil, err
	}
	n, p := X.Dims()
	if p != len(t.FeatureNames) {
		return nil, nil, errors.NewDimensionError("partition.Predict", len(t.FeatureNames), p, 1)
	}

	regions := t.Regions()
	groupOf := make(map[int]int, len(regions))
	rules = make([]string, len(regions))
	for _, r := range regions {
		groupOf[r.Node] = r.Group
		rules[r.Group] = r.Rule()
	}

	groups = make([]int, n)
	row := make([]float64, p)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		groups[i] = groupOf[t.Apply(row)]
	}
	return groups, rules, nil
}

// Losses returns the thresholds and child impurities evaluated at node, one
// slice per feature. It fails when the tree was grown without SaveLosses.
func (t *Tree) Losses(node int) (splits, objectives [][]float64, err error) {
	if node < 0 || node >= len(t.Nodes) {
		return nil, nil, errors.NewValidationError("node", fmt.Sprintf("index out of range [0, %d)", len(t.Nodes)), node)
	}
	nd := &t.Nodes[node]
	if nd.Splits == nil {
		return nil, nil, errors.NewValueError("partition.Losses",
			fmt.Sprintf("node %d has no recorded losses, fit with SaveLosses on an internal node", node))
	}
	return nd.Splits, nd.Objectives, nil
}
