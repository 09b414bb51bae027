package partition

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/list"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// Print renders the tree as an indented list. Verbose output adds the
// sample count and impurity of every node.
func (t *Tree) Print(w io.Writer, verbose bool) error {
	if err := t.RequireFitted("FDTree", "Print"); err != nil {
		return err
	}

	lw := list.NewWriter()
	lw.SetStyle(list.StyleConnectedRounded)

	groups := make(map[int]int)
	for _, r := range t.Regions() {
		groups[r.Node] = r.Group
	}

	describe := func(id int, label string) string {
		node := &t.Nodes[id]
		s := label
		if verbose {
			s += fmt.Sprintf(" [n=%d impurity=%.4g]", node.NSamples, node.Impurity)
		}
		if node.IsLeaf() {
			s += fmt.Sprintf(" -> group %d", groups[id])
		}
		return s
	}

	var walk func(id int)
	walk = func(id int) {
		node := &t.Nodes[id]
		if node.IsLeaf() {
			return
		}
		name := t.featureName(node.Feature)
		lw.Indent()
		lw.AppendItem(describe(node.Left, fmt.Sprintf("%s <= %.4g", name, node.Threshold)))
		walk(node.Left)
		lw.AppendItem(describe(node.Right, fmt.Sprintf("%s > %.4g", name, node.Threshold)))
		walk(node.Right)
		lw.UnIndent()
	}

	lw.AppendItem(describe(0, fmt.Sprintf("%s (total impurity %.4g)", t.Strategy, t.TotalImpurity())))
	walk(0)

	if _, err := io.WriteString(w, lw.Render()+"\n"); err != nil {
		return errors.Wrap(err, "write tree")
	}
	return nil
}
