package cmd

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/spf13/cobra"
)

// branchListCmd represents the branch list command
var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the known branches",
	Run: func(cmd *cobra.Command, args []string) {
		r, done, err := initRepo()
		if err != nil {
			log.Fatalln(err)
		}
		defer done()

		names, err := r.ListBranches(context.Background())
		if err != nil {
			log.Fatalln(err)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Println(name)
		}
	},
}

func init() {
	branchCmd.AddCommand(branchListCmd)
}
