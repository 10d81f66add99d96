package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// logCmd represents the log command
var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the history of the branch, most recent first",
	Run: func(cmd *cobra.Command, args []string) {
		r, done, err := initRepo()
		if err != nil {
			log.Fatalln(err)
		}
		defer done()

		history, err := r.Log(context.Background(), branch)
		if err != nil {
			log.Fatalln(err)
		}
		for _, snap := range history {
			fmt.Printf("%s  %s  %s\n", snap.ID, snap.Timestamp.Format("2006-01-02 15:04:05"), snap.Message)
		}
	},
}

func init() {
	rootCmd.AddCommand(logCmd)
}
