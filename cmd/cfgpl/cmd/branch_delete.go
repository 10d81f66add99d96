package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
)

// branchDeleteCmd represents the branch delete command
var branchDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a branch pointer",
	Long: `Delete a branch pointer.

Snapshots the branch pointed at stay in the history graph.
`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r, done, err := initRepo()
		if err != nil {
			log.Fatalln(err)
		}
		defer done()

		if err := r.DeleteBranch(context.Background(), args[0]); err != nil {
			log.Fatalln(err)
		}
		log.Printf("branch %q deleted", args[0])
	},
}

func init() {
	branchCmd.AddCommand(branchDeleteCmd)
}
