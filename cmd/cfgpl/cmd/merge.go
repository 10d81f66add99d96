package cmd

import (
	"context"
	"errors"
	"log"

	"github.com/configplane/configplane/pkg/repo"
	"github.com/spf13/cobra"
)

// mergeCmd represents the merge command
var mergeCmd = &cobra.Command{
	Use:   "merge SOURCE",
	Short: "Merge another branch into the current branch",
	Long: `Merge another branch into the current branch.

Keys changed on one side since the common ancestor take that side's value;
keys changed on both sides to different values abort the merge and are
reported with both candidates. A conflicted merge changes nothing.
`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r, done, err := initRepo()
		if err != nil {
			log.Fatalln(err)
		}
		defer done()

		snap, err := r.Merge(context.Background(), args[0], branch,
			repo.CommitMessage(message), repo.CommitAuthor(author))
		if err != nil {
			var conflict *repo.ConflictError
			if errors.As(err, &conflict) {
				printYaml(conflict.Conflicts)
			}
			log.Fatalln(err)
		}
		log.Printf("merged %q into %q at %s", args[0], branch, snap.ID)
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	addCommitFlags(mergeCmd)
}
