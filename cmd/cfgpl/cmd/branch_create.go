package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
)

var branchFrom string

// branchCreateCmd represents the branch create command
var branchCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a branch from an existing branch's head",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r, done, err := initRepo()
		if err != nil {
			log.Fatalln(err)
		}
		defer done()

		from := branchFrom
		if from == "" {
			from = branch
		}
		if err := r.CreateBranch(context.Background(), args[0], from); err != nil {
			log.Fatalln(err)
		}
		log.Printf("branch %q created from %q", args[0], from)
	},
}

func init() {
	branchCmd.AddCommand(branchCreateCmd)

	fls := branchCreateCmd.Flags()
	fls.StringVar(&branchFrom, "from", "", "the branch to clone (defaults to --branch)")
}
