package cmd

import (
	"github.com/josephlewis42/ensishell/commands"
	"github.com/spf13/cobra"
)

// builtinsCmd lists the commands handled inside the shell
var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "Show the builtin commands of the shell.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commands.WriteBuiltinTable(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
