package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"credit-reconciliation-service/cmd/reconciler/config"
	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Credit transaction reconciliation tool",
	Long: `Reconciler classifies incoming credits from a bank statement against the
customer registries, records each one in exactly one outcome ledger, and
queues uncertain plate matches for operator review.

Examples:
  reconciler reconcile --statement statement.xlsx --registry registry.xlsx
  reconciler reconcile --statement statement.csv --dry-run --output-format json
  reconciler review --run-id 2f1c... --interactive
  reconciler pending list`,
	Version:       getVersionString(),
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return NewCLIErrorHandler(os.Stderr).HandleError(err)
	}
	return 0
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("ledger-workbook", "", "outcome ledger workbook")
	rootCmd.PersistentFlags().String("pending-db", "", "pending review database")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("ledger.workbook", rootCmd.PersistentFlags().Lookup("ledger-workbook"))
	viper.BindPFlag("pending.path", rootCmd.PersistentFlags().Lookup("pending-db"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(4)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

// loadConfig decodes the active configuration and installs the global logger.
func loadConfig() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", viper.ConfigFileUsed(), err)
	}

	if viper.GetBool("verbose") {
		cfg.Log.Level = logger.DebugLevel
	}
	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", cfg.Log.Output, err)
	}
	logger.SetGlobalLogger(log)

	return cfg, log, nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
