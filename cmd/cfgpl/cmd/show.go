package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the head snapshot of the branch",
	Run: func(cmd *cobra.Command, args []string) {
		r, done, err := initRepo()
		if err != nil {
			log.Fatalln(err)
		}
		defer done()

		snap, err := r.GetSnapshot(context.Background(), branch)
		if err != nil {
			log.Fatalln(err)
		}
		printYaml(snap)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
