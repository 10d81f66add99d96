package cmd

import (
	"context"
	"log"

	"github.com/configplane/configplane/pkg/repo"
	"github.com/spf13/cobra"
)

// unsetCmd represents the unset command
var unsetCmd = &cobra.Command{
	Use:   "unset KEY",
	Short: "Stage the removal of a key and commit it to the branch",
	Long: `Stage the removal of a key and commit it to the branch.

Removing a key that does not exist is legal: the resulting snapshot is
identical to the branch head, under a new id.
`,
	Args: cobra.ExactArgs(1),
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
		stage.Delete(args[0])

		snap, err := r.Commit(ctx, stage,
			repo.CommitMessage(message), repo.CommitAuthor(author))
		if err != nil {
			log.Fatalln(err)
		}
		log.Printf("committed %s on branch %q", snap.ID, branch)
	},
}

func init() {
	rootCmd.AddCommand(unsetCmd)
	addCommitFlags(unsetCmd)
}
