package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/fdtree/internal/config"
	"github.com/YuminosukeSato/fdtree/internal/pipeline"
)

func fitCmd(root *rootCmdConfig) *cobra.Command {
	var (
		bindings []flagBinding
		verbose  bool
	)
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit partition trees on the decomposition of an ensemble",
		Long: `Decompose the model, build the target of the chosen strategy and fit one
tree per requested depth. Trees (and loss plots, when enabled) are written
under <output>/<dataset>/<model>_<seed>/ when an output directory is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, cmd.Flags(), bindings)
			if err != nil {
				return err
			}
			res, err := pipeline.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return printFit(cmd.OutOrStdout(), res, verbose)
		},
	}

	flags := cmd.Flags()
	bindings = addInputFlags(flags)
	d := config.Default()
	flags.StringP("strategy", "s", d.Partition.Strategy, "partition strategy, see the strategies command")
	flags.IntSlice("depths", d.Partition.Depths, "maximum depths to fit")
	flags.Int("samples-leaf", d.Partition.SamplesLeaf, "minimum rows per leaf")
	flags.Float64("negligible-impurity", d.Partition.NegligibleImpurity, "impurity below which nodes are not split")
	flags.Float64("relative-decrease", d.Partition.RelativeDecrease, "minimum relative impurity decrease of a split")
	flags.Int("max-candidates", d.Partition.MaxCandidates, "thresholds per feature, 0 for every midpoint")
	flags.Bool("save-losses", d.Partition.SaveLosses, "record the split search of every node")
	flags.StringP("output", "o", d.Output.Dir, "results directory")
	flags.Bool("plot", d.Output.PlotLosses, "plot the root split search, requires --save-losses")
	flags.BoolVarP(&verbose, "verbose", "v", false, "print sample counts and impurities of every node")
	bindings = append(bindings,
		flagBinding{"partition.strategy", "strategy"},
		flagBinding{"partition.depths", "depths"},
		flagBinding{"partition.samples_leaf", "samples-leaf"},
		flagBinding{"partition.negligible_impurity", "negligible-impurity"},
		flagBinding{"partition.relative_decrease", "relative-decrease"},
		flagBinding{"partition.max_candidates", "max-candidates"},
		flagBinding{"partition.save_losses", "save-losses"},
		flagBinding{"output.dir", "output"},
		flagBinding{"output.plot_losses", "plot"},
	)
	return cmd
}

func printFit(w io.Writer, res *pipeline.Result, verbose bool) error {
	fmt.Fprintf(w, "additive fidelity (R²): %.4f\n\n", res.Fidelity)
	for _, dr := range res.Trees {
		fmt.Fprintf(w, "max depth %d\n", dr.Depth)
		if err := dr.Tree.Print(w, verbose); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"depth", "leaves", "root impurity", "total impurity", "saved"})
	for _, dr := range res.Trees {
		t.AppendRow(table.Row{
			dr.Depth,
			len(dr.Rules),
			fmt.Sprintf("%.4g", dr.Tree.RootImpurity()),
			fmt.Sprintf("%.4g", dr.TotalImpurity),
			dr.Path,
		})
	}
	t.Render()
	return nil
}
