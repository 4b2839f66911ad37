package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lorebase/lorebase/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration summary",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(_ *cobra.Command, _ []string) error {
	fmt.Printf("Lorebase %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	// Version must print even when the configuration is broken.
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Configuration: unavailable (%v)\n", err)
		return nil
	}

	fmt.Println("Configuration:")
	fmt.Printf("  Provider: %s\n", cfg.Provider)
	fmt.Printf("  Collection: %s\n", cfg.Collection)
	fmt.Printf("  Dimension: %d\n", cfg.Dimension)
	fmt.Printf("  Embedder: %s\n", cfg.Embedder)
	if cfg.EmbedderModel != "" {
		fmt.Printf("  Embedder model: %s\n", cfg.EmbedderModel)
	}
	if cfg.Embedder == config.EmbedderGoogle {
		if cfg.GoogleAPIKey != "" {
			fmt.Println("  GEMINI_API_KEY: configured")
		} else {
			fmt.Println("  GEMINI_API_KEY: not set")
			fmt.Println()
			fmt.Println("Hint: export GEMINI_API_KEY=your-api-key")
		}
	}

	return nil
}
