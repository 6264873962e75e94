package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liverow",
		Short: "Inspect and query databases through live schema introspection",
		Long: `liverow connects to a SQL database, introspects its tables, columns,
primary keys, and foreign keys, and lets you dump the discovered schema or run
ad-hoc queries against it from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./liverow.yaml)")
	cmd.PersistentFlags().String("driver", "", "database driver (postgres, mysql, sqlite)")
	cmd.PersistentFlags().String("dsn", "", "database connection string")
	cmd.PersistentFlags().String("db-schema", "", "database schema to introspect (default: connection default)")
	cmd.PersistentFlags().Bool("password-prompt", false, "prompt for the DSN password instead of embedding it")

	viper.BindPFlag("driver", cmd.PersistentFlags().Lookup("driver"))
	viper.BindPFlag("dsn", cmd.PersistentFlags().Lookup("dsn"))
	viper.BindPFlag("db_schema", cmd.PersistentFlags().Lookup("db-schema"))

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newSchemaCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("liverow")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.liverow")
	}

	viper.SetEnvPrefix("LIVEROW")
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
