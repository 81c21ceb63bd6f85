package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/querymind/querymind/internal/errors"
	"github.com/querymind/querymind/internal/executor"
	"github.com/querymind/querymind/internal/guardrail"
	"github.com/querymind/querymind/internal/pipeline"
)

var queryCmd = &cobra.Command{
	Use:   "query <connection-id> <question>",
	Short: "Answer a natural-language question with a validated SQL query",
	Long: `Retrieve the schema context relevant to the question, generate a SQL
candidate, validate it against the read-only safety policy, and execute it
if accepted. The candidate streams to the terminal while it is generated.

Examples:
  querymind query shop "How many orders were placed last month?"
  querymind query shop --strict-scope "Top 5 customers by revenue"`,
	Args: cobra.ExactArgs(2),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	// Ctrl-C aborts generation and guarantees nothing reaches the executor
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	connectionID := args[0]

	question := strings.TrimSpace(args[1])
	if question == "" {
		return errors.New(errors.ErrTypeValidation, "question must not be empty")
	}

	cfg, err := getConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := buildQueryPipeline(ctx, cfg, store)
	if err != nil {
		return err
	}

	events, err := p.AnswerQuery(ctx, connectionID, question)
	if err != nil {
		return err
	}

	streaming := false

	endStream := func() {
		if streaming {
			fmt.Println()

			streaming = false
		}
	}

	for event := range events {
		switch event.Type {
		case pipeline.EventStatus:
			endStream()
			fmt.Printf("… %s\n", event.Message)
		case pipeline.EventSQLChunk:
			streaming = true

			fmt.Print(event.Chunk)
		case pipeline.EventRejected:
			endStream()
			printRejection(event.Verdict)
		case pipeline.EventResults:
			endStream()
			printResult(event.Result)
		case pipeline.EventError:
			endStream()

			return errors.New(errors.ErrTypeInternal, event.Err)
		}
	}

	return nil
}

func printRejection(verdict *guardrail.Verdict) {
	fmt.Printf("Query rejected (%s): %s\n", verdict.Reason, verdict.Detail)
	fmt.Println("Nothing was executed.")
}

func printResult(result *executor.Result) {
	if result.RowCount == 0 {
		fmt.Println("No rows returned.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(result.Columns, "\t"))

	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatCell(value)
		}

		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}

	_ = w.Flush()

	if result.Truncated {
		fmt.Printf("%d rows (truncated to the row limit) in %dms\n", result.RowCount, result.ElapsedMS)
	} else {
		fmt.Printf("%d rows in %dms\n", result.RowCount, result.ElapsedMS)
	}
}

func formatCell(value interface{}) string {
	if value == nil {
		return "NULL"
	}

	if b, ok := value.([]byte); ok {
		return string(b)
	}

	return fmt.Sprintf("%v", value)
}
