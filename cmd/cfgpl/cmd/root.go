package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	// the sql backend is exercised with sqlite locally
	_ "github.com/mattn/go-sqlite3"

	"github.com/configplane/configplane"
	"github.com/configplane/configplane/pkg/dlogger"
	"github.com/configplane/configplane/pkg/repo"
	"github.com/configplane/configplane/pkg/store"
	"github.com/configplane/configplane/pkg/store/gitfs"
	"github.com/configplane/configplane/pkg/store/localfs"
	"github.com/configplane/configplane/pkg/store/memory"
	"github.com/configplane/configplane/pkg/store/sqlstore"
)

var branch string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cfgpl",
	Short: "cfgpl manages versioned configuration data",
	Long: `cfgpl manages versioned configuration data.

Configuration lives on named branches of immutable snapshots, with a git
like workflow: edits commit atomically, concurrent writers fail fast
instead of clobbering each other, and branches merge three-way.

The backend is selected through configuration (.cfgpl.yaml or CFGPL_*
environment variables):

  backend: localfs | git | sql | memory
  path:    base directory (localfs) or repository path (git)
  dsn:     database source name (sql, sqlite file path)
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&branch, "branch", "b", configplane.DefaultBranch, "the branch to operate on")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfg := os.Getenv("CFGPL_CONFIG"); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".cfgpl")
	}

	viper.SetEnvPrefix("cfgpl")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

// initRepo builds the repository view for the configured backend. The
// returned closer must be called before exit.
func initRepo() (*repo.Repo, func(), error) {
	logs, err := dlogger.New(viper.GetString("log_level"))
	if err != nil {
		return nil, nil, err
	}

	var st store.Store
	switch backend := viper.GetString("backend"); backend {
	case "memory":
		st = memory.New()
	case "git":
		st = gitfs.New(pathOrDefault())
	case "sql":
		db, err := sql.Open("sqlite3", viper.GetString("dsn"))
		if err != nil {
			return nil, nil, err
		}
		st = sqlstore.New(db)
	case "", "localfs":
		st = localfs.New(pathOrDefault())
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}

	r, err := configplane.New(context.Background(), st, repo.Logger(logs))
	if err != nil {
		return nil, nil, err
	}
	return r, func() { _ = st.Close() }, nil
}

func pathOrDefault() string {
	if pth := viper.GetString("path"); pth != "" {
		return pth
	}
	return ".cfgpl"
}

func printYaml(v interface{}) {
	data, err := yaml.Marshal(v)
	if err != nil {
		log.Fatalln(err)
	}
	fmt.Print(string(data))
}
