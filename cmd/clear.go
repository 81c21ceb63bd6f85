package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var clearForce bool

var clearCmd = &cobra.Command{
	Use:   "clear <connection-id>",
	Short: "Remove a connection's entries from the schema index",
	Long: `Delete every indexed schema document of a connection. Credentials and
query history are kept. This action requires confirmation.`,
	Args: cobra.ExactArgs(1),
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "Skip confirmation prompt")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
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

	count, err := store.Count(ctx, connectionID)
	if err != nil {
		return err
	}

	if count == 0 {
		fmt.Printf("Connection %q has no index entries.\n", connectionID)
		return nil
	}

	if !clearForce {
		fmt.Printf("This will delete %d indexed tables for %q.\n", count, connectionID)
		fmt.Print("Type 'yes' to confirm: ")

		reader := bufio.NewReader(os.Stdin)

		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Println("Operation cancelled.")
			return nil
		}
	}

	if err := store.Delete(ctx, connectionID); err != nil {
		return err
	}

	fmt.Printf("Cleared index entries for %q.\n", connectionID)

	return nil
}
