package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	dbPath     string
	appVersion string // set in Execute, used by serve for telemetry
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aigate",
		Short: "Self-hosted AI inference API with key-based access control",
		Long: `AIGate: a self-hosted inference gateway with API key authentication.

AIGate fronts local AI models (text generation, embeddings, transcription, OCR)
with a REST API secured by hashed API keys. Keys carry expiration, per-endpoint
scopes, and an admin flag; every authenticated request is recorded in an audit
log stored alongside the keys in SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./aigate.yaml)")
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite key database (default: ./data/api_keys.db)")

	cobra.OnInitialize(initConfig)

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	// A local .env file is a convenient place for AIGATE_* overrides in
	// development. Missing file is not an error.
	godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("aigate")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.aigate")
	}

	viper.SetEnvPrefix("AIGATE")
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
