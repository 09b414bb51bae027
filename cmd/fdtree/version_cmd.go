package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/fdtree"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of fdtree",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fdtree v%s\n", fdtree.Version)
		},
	}
}
