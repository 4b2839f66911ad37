package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a document and all of its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, logger, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	if err := a.Knowledge.RemoveDocument(ctx, args[0]); err != nil {
		return fmt.Errorf("removing %s: %w", args[0], err)
	}

	fmt.Printf("Removed %s\n", args[0])
	return nil
}
