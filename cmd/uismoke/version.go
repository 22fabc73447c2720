package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/integrail/uismoke/internal/build"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.Version)
		},
	}
}
