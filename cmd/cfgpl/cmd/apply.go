package cmd

import (
	"context"
	"log"
	"os"

	"github.com/configplane/configplane/pkg/repo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var applyFile string

// applyCmd represents the apply command
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Stage a batch of changes from a yaml file and commit them",
	Long: `Stage a batch of changes from a yaml file and commit them.

The file maps keys to string values; a null value removes the key:

  feature_x: "true"
  theme: dark
  legacy_flag: null
`,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(applyFile)
		if err != nil {
			log.Fatalln(err)
		}
		var changes map[string]*string
		if err := yaml.Unmarshal(data, &changes); err != nil {
			log.Fatalln(err)
		}

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
		for key, value := range changes {
			if value == nil {
				stage.Delete(key)
				continue
			}
			stage.Set(key, []byte(*value))
		}

		snap, err := r.Commit(ctx, stage,
			repo.CommitMessage(message), repo.CommitAuthor(author))
		if err != nil {
			log.Fatalln(err)
		}
		log.Printf("committed %s on branch %q (%d changes)", snap.ID, branch, len(changes))
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
	addCommitFlags(applyCmd)

	fls := applyCmd.Flags()
	fls.StringVarP(&applyFile, "file", "f", "", "yaml file with the changes to apply")
	_ = applyCmd.MarkFlagRequired("file")
}
