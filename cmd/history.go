package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <connection-id>",
	Short: "Show past questions and their outcomes",
	Long: `List past questions for a connection, newest first, with the generated
SQL and whether the safety check accepted it.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := getConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListHistory(ctx, args[0], historyLimit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No history for this connection yet.")
		return nil
	}

	for i, record := range records {
		fmt.Printf("%d. [%s] %s\n", i+1, record.CreatedAt.Local().Format("2006-01-02 15:04"), record.Question)
		fmt.Printf("   SQL: %s\n", record.GeneratedSQL)

		if record.Accepted {
			fmt.Printf("   Accepted, %d rows in %dms\n", record.RowCount, record.ElapsedMS)
		} else {
			fmt.Printf("   Rejected (%s)\n", record.RejectReason)
		}

		if i < len(records)-1 {
			fmt.Println()
		}
	}

	return nil
}
