package partition

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// PlotLosses draws the child impurity of every evaluated threshold at node,
// one line per feature, and saves it to path. The image format follows the
// file extension.
func (t *Tree) PlotLosses(node int, path string) error {
	splits, objectives, err := t.Losses(node)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s node %d", t.Strategy, node)
	p.X.Label.Text = "threshold"
	p.Y.Label.Text = "impurity"

	drawn := 0
	for f := range splits {
		if len(splits[f]) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(splits[f]))
		for i := range pts {
			pts[i].X = splits[f][i]
			pts[i].Y = objectives[f][i]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrapf(err, "plot feature %d", f)
		}
		line.Color = plotutil.Color(drawn)
		p.Add(line)
		p.Legend.Add(t.featureName(f), line)
		drawn++
	}
	if drawn == 0 {
		return errors.NewValueError("partition.PlotLosses", fmt.Sprintf("node %d has no admissible split", node))
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}
