package cmd

import (
	"context"
	"log"

	"github.com/configplane/configplane/pkg/model"
	"github.com/spf13/cobra"
)

// diffCmd represents the diff command
var diffCmd = &cobra.Command{
	Use:   "diff BRANCH_A BRANCH_B",
	Short: "Compare the head snapshots of two branches",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		r, done, err := initRepo()
		if err != nil {
			log.Fatalln(err)
		}
		defer done()

		ctx := context.Background()
		a, err := r.GetSnapshot(ctx, args[0])
		if err != nil {
			log.Fatalln(err)
		}
		b, err := r.GetSnapshot(ctx, args[1])
		if err != nil {
			log.Fatalln(err)
		}

		changes := model.Diff(a.Entries, b.Entries)
		if changes.IsEmpty() {
			log.Printf("branches %q and %q have identical content", args[0], args[1])
			return
		}
		printYaml(changes)
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
