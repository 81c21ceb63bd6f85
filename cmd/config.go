package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the active configuration",
	Long:  `Show the merged configuration from file, environment variables, and flags. API keys are never printed.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		fmt.Println("Active Configuration:")

		fmt.Println("\nIndex:")
		fmt.Printf("  Path: %s\n", cfg.Index.Path)
		fmt.Printf("  Max Connections: %d\n", cfg.Index.MaxConnections)

		fmt.Println("\nEmbedding:")
		fmt.Printf("  Model: %s\n", cfg.Embedding.Model)
		fmt.Printf("  Dimensions: %d\n", cfg.Embedding.Dimensions)
		fmt.Printf("  API Key Set: %t\n", cfg.Embedding.APIKey != "")

		fmt.Println("\nGeneration:")
		fmt.Printf("  Model: %s\n", cfg.Generation.Model)
		fmt.Printf("  Temperature: %.2f\n", cfg.Generation.Temperature)
		fmt.Printf("  Max Output Tokens: %d\n", cfg.Generation.MaxOutputTokens)
		fmt.Printf("  API Key Set: %t\n", cfg.Generation.APIKey != "")

		fmt.Println("\nRetrieval:")
		fmt.Printf("  Top K: %d\n", cfg.Retrieval.TopK)

		fmt.Println("\nPolicy:")
		fmt.Printf("  Enforce Scope: %t\n", cfg.Policy.EnforceScope)
		fmt.Printf("  Statement Timeout: %dms\n", cfg.Policy.StatementTimeoutMS)
		fmt.Printf("  Max Rows: %d\n", cfg.Policy.MaxRows)

		fmt.Println("\nLogging:")
		fmt.Printf("  Level: %s\n", cfg.Logging.Level)
		fmt.Printf("  Format: %s\n", cfg.Logging.Format)
		fmt.Printf("  Output: %s\n", cfg.Logging.Output)

		if cfg.Logging.Output == "file" {
			fmt.Printf("  File: %s\n", cfg.Logging.File)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
