package cmd

import (
	"context"
	"log"

	"github.com/configplane/configplane/pkg/repo"
	"github.com/spf13/cobra"
)

var (
	message string
	author  string
)

// setCmd represents the set command
var setCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Stage a value under a key and commit it to the branch",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		r, done, err := initRepo()
		if err != nil {
			log.Fatalln(err)
		}
		defer done()

		ctx := context.Background()
		stage, err := r.CreateStage(ctx, branch)
		if err != nil {
			log.Fatalln(err)
		}
		stage.Set(args[0], []byte(args[1]))

		snap, err := r.Commit(ctx, stage,
			repo.CommitMessage(message), repo.CommitAuthor(author))
		if err != nil {
			log.Fatalln(err)
		}
		log.Printf("committed %s on branch %q", snap.ID, branch)
	},
}

func addCommitFlags(cmd *cobra.Command) {
	fls := cmd.Flags()
	fls.StringVarP(&message, "message", "m", "", "the commit message")
	fls.StringVar(&author, "author", "", "the commit author")
}

func init() {
	rootCmd.AddCommand(setCmd)
	addCommitFlags(setCmd)
}
