package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/querymind/querymind/internal/config"
	"github.com/querymind/querymind/internal/logging"
)

var (
	flagIndexPath   string
	flagLogLevel    string
	flagTopK        int
	flagStrictScope bool
)

var rootCmd = &cobra.Command{
	Use:   "querymind",
	Short: "Ask registered Postgres databases questions in natural language",
	Long: `querymind indexes the schema of registered PostgreSQL connections into a
local DuckDB vector index, retrieves the schema context relevant to a
question, generates a SQL candidate with a language model, and executes it
only after a deterministic read-only safety check accepts it.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupRuntime,
}

// Execute runs the root command.
func Execute() error {
	ctx := context.Background()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagIndexPath, "index-path", "", "Override the schema index database path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&flagTopK, "top-k", 0, "Override how many schema documents are retrieved per question")
	rootCmd.PersistentFlags().BoolVar(&flagStrictScope, "strict-scope", false, "Reject queries referencing tables outside the retrieved schema context")
}

var appConfig *config.Config

// setupRuntime loads configuration and initializes logging before any
// subcommand runs.
func setupRuntime(cmd *cobra.Command, _ []string) error {
	overrides := map[string]interface{}{
		"index-path": flagIndexPath,
		"log-level":  flagLogLevel,
		"top-k":      flagTopK,
	}

	if cmd.Flags().Changed("strict-scope") {
		overrides["strict-scope"] = flagStrictScope
	}

	cfg, err := config.LoadConfigWithOverrides(overrides)
	if err != nil {
		return err
	}

	cfg.ExpandAllPaths()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		logging.SetupFallbackLogger()
	}

	appConfig = cfg

	return nil
}

// getConfig returns the loaded configuration, loading defaults if the
// persistent pre-run was bypassed (as in tests).
func getConfig() (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	cfg.ExpandAllPaths()
	appConfig = cfg

	return cfg, nil
}
