package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/querymind/querymind/internal/errors"
	"github.com/querymind/querymind/internal/pipeline"
)

var indexCmd = &cobra.Command{
	Use:   "index <connection-id>",
	Short: "Index the schema of a registered connection",
	Long: `Extract the schema of a registered connection, embed one document per
table, and store the vectors in the local index. Re-running only embeds
tables whose schema changed since the last run.

Example:
  querymind index shop`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	connectionID := args[0]

	cfg, err := getConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := buildIndexPipeline(ctx, cfg, store)
	if err != nil {
		return err
	}

	events, err := p.IndexConnection(ctx, connectionID)
	if err != nil {
		return err
	}

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	spin.Suffix = " starting"
	spin.Start()

	defer spin.Stop()

	for event := range events {
		switch event.Type {
		case pipeline.EventStatus:
			spin.Suffix = " " + event.Message
		case pipeline.EventProgress:
			spin.Suffix = fmt.Sprintf(" embedding documents (%d/%d)",
				event.Progress.Done, event.Progress.Total)
		case pipeline.EventDone:
			spin.Stop()
			fmt.Printf("Done: %s.\n", event.Message)
		case pipeline.EventError:
			spin.Stop()
			return errors.New(errors.ErrTypeInternal, event.Err)
		}
	}

	return nil
}
