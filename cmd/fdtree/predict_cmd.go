package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/fdtree/internal/config"
	"github.com/YuminosukeSato/fdtree/internal/pipeline"
	"github.com/YuminosukeSato/fdtree/partition"
	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

type predictCmdConfig struct {
	treeInput  string
	dataInput  string
	groupsPath string
}

func predictCmd(root *rootCmdConfig) *cobra.Command {
	pc := &predictCmdConfig{}
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Assign the rows of a CSV table to the regions of a saved tree",
		Long: `Load a tree written by fit, assign every row of the data table to a region
and print the rule and size of each region. Columns are matched to the tree
features by header name.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pc.Validate(); err != nil {
				return err
			}
			if err := applyLogging(loggingFor(root.logLevel)); err != nil {
				return err
			}
			tree, err := partition.LoadTree(pc.treeInput)
			if err != nil {
				return err
			}
			X, names, err := pipeline.LoadCSV(pc.dataInput)
			if err != nil {
				return err
			}
			cols, err := matchColumns(tree.FeatureNames, names)
			if err != nil {
				return err
			}
			groups, rules, err := tree.Predict(pipeline.Columns(X, cols))
			if err != nil {
				return err
			}
			if pc.groupsPath != "" {
				if err := writeGroups(pc.groupsPath, groups); err != nil {
					return err
				}
			}
			printRegions(cmd.OutOrStdout(), groups, rules)
			return nil
		},
	}
	cmd.Flags().StringVarP(&pc.treeInput, "tree", "t", "", "path to a tree saved by fit (required)")
	cmd.Flags().StringVarP(&pc.dataInput, "data", "d", "", "path to a CSV table with a header row (required)")
	cmd.Flags().StringVarP(&pc.groupsPath, "groups", "g", "", "write the group of every row to this CSV file")
	return cmd
}

func (pcc *predictCmdConfig) Validate() error {
	if pcc.treeInput == "" {
		return errors.NewValidationError("tree", "required flag was not set", "")
	}
	if pcc.dataInput == "" {
		return errors.NewValidationError("data", "required flag was not set", "")
	}
	return nil
}

func loggingFor(level string) config.LoggingConfig {
	lc := config.Default().Logging
	lc.Level = level
	return lc
}

// matchColumns returns, for every tree feature, its column in the table.
func matchColumns(features, header []string) ([]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	cols := make([]int, len(features))
	for i, f := range features {
		c, ok := index[f]
		if !ok {
			return nil, errors.NewValidationError("data", "missing column of tree feature", f)
		}
		cols[i] = c
	}
	return cols, nil
}

func writeGroups(path string, groups []int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"row", "group"}); err != nil {
		return errors.Wrap(err, "write groups")
	}
	for i, g := range groups {
		if err := w.Write([]string{strconv.Itoa(i), strconv.Itoa(g)}); err != nil {
			return errors.Wrap(err, "write groups")
		}
	}
	w.Flush()
	return errors.Wrap(w.Error(), "write groups")
}

func printRegions(w io.Writer, groups []int, rules []string) {
	counts := make([]int, len(rules))
	for _, g := range groups {
		counts[g]++
	}
	t := newTable(w)
	t.SetColumnConfigs([]table.ColumnConfig{ruleColumn})
	t.AppendHeader(table.Row{"group", "rule", "rows", "share"})
	for g, rule := range rules {
		share := 0.0
		if len(groups) > 0 {
			share = float64(counts[g]) / float64(len(groups))
		}
		t.AppendRow(table.Row{g, rule, counts[g], fmt.Sprintf("%.1f%%", 100*share)})
	}
	t.AppendFooter(table.Row{"", "total", len(groups), ""})
	t.Render()
}
