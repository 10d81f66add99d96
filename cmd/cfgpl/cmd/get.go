package cmd

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print the blob stored under a key at the branch head",
	Args:  cobra.ExactArgs(1),
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
		blob, ok := snap.Entries[args[0]]
		if !ok {
			log.Fatalf("key %q not found on branch %q", args[0], branch)
		}
		_, _ = os.Stdout.Write(blob)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
