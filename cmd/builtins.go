package cmd

import (
	"fmt"

	"github.com/josephlewis42/jobsh/core/shell"
	"github.com/spf13/cobra"
)

var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "Show the builtin commands of the shell.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range shell.BuiltinNames() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s%s\n", name, shell.BuiltinSummary(name))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
