package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/fdtree/partition"
)

var strategyDescriptions = map[string]string{
	partition.StrategyGadgetPDP: "flatten the grand mean and main effects of the analysed features",
	partition.StrategyL2CoE:     "minimise the spread of the interaction term",
	partition.StrategyRandom:    "random splits on the l2coe target, a baseline",
	partition.StrategyCART:      "regression tree on the decomposed output, ignores interactions",
}

func strategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the partition strategies",
		Run: func(cmd *cobra.Command, args []string) {
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"strategy", "objective"})
			for _, name := range partition.Strategies() {
				t.AppendRow(table.Row{name, strategyDescriptions[name]})
			}
			t.Render()
		},
	}
}
