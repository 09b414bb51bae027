package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/fdtree/internal/pipeline"
)

func decomposeCmd(root *rootCmdConfig) *cobra.Command {
	var bindings []flagBinding
	cmd := &cobra.Command{
		Use:   "decompose",
		Short: "Decompose an ensemble over a background sample",
		Long: `Compute (or read from the cache) the interventional decomposition of the
model over a background sample and report how additive the model is: the R²
of grand mean plus main effects against the model output, and the variance of
every component.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, cmd.Flags(), bindings)
			if err != nil {
				return err
			}
			res, err := pipeline.Decompose(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printDecomposition(cmd.OutOrStdout(), res)
			return nil
		},
	}
	bindings = addInputFlags(cmd.Flags())
	return cmd
}

func printDecomposition(w io.Writer, res *pipeline.Result) {
	n, _, o := res.Tensor.Dims()
	fmt.Fprintf(w, "background rows: %d, cached: %t\n", n, res.CacheHit)
	fmt.Fprintf(w, "additive fidelity (R²): %.4f\n", res.Fidelity)

	t := newTable(w)
	header := table.Row{"component"}
	for out := 0; out < o; out++ {
		header = append(header, fmt.Sprintf("variance[%d]", out))
	}
	t.AppendHeader(header)
	for k, name := range res.ComponentNames {
		row := table.Row{name}
		for out := 0; out < o; out++ {
			row = append(row, fmt.Sprintf("%.4g", res.Importance.At(k, out)))
		}
		t.AppendRow(row)
	}
	t.Render()
}
