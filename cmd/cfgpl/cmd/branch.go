package cmd

import (
	"github.com/spf13/cobra"
)

// branchCmd represents the branch command
var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Manage branches of the configuration store",
	Long: `Manage branches of the configuration store.

A branch represents an alternative timeline for configuration to evolve.
`,
}

func init() {
	rootCmd.AddCommand(branchCmd)
}
