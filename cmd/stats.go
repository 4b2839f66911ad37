package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store and search statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, logger, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	stats, err := a.Knowledge.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
