package cmd

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/lorebase/lorebase/internal/knowledge"
)

// cliUserID attributes searches from the CLI in the per-user cache.
const cliUserID = "cli"

var (
	searchTopK          int
	searchMinSimilarity float64
	searchFilters       []string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base by meaning",
	Long: `Search embeds the query and returns the most similar stored chunks.
Results below the similarity threshold are dropped, so fewer than --top-k
results may come back.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "maximum results (default from config)")
	searchCmd.Flags().Float64Var(&searchMinSimilarity, "min-similarity", 0, "similarity threshold in [0,1] (default from config)")
	searchCmd.Flags().StringArrayVar(&searchFilters, "filter", nil, "metadata filter as key=value (repeatable)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	filters, err := parseFilters(searchFilters)
	if err != nil {
		return err
	}

	a, logger, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	var opts []knowledge.SearchOption
	if searchTopK > 0 {
		opts = append(opts, knowledge.WithTopK(searchTopK))
	}
	if searchMinSimilarity > 0 {
		opts = append(opts, knowledge.WithMinSimilarity(float32(searchMinSimilarity)))
	}
	for key, value := range filters {
		opts = append(opts, knowledge.WithFilter(key, value))
	}

	results, err := a.Knowledge.SearchKnowledge(ctx, cliUserID, args[0], opts...)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, result := range results {
		fmt.Printf("%2d. [%.3f] doc %s", i+1, result.Similarity, result.DocumentID)
		if source := result.Metadata["source"]; source != "" {
			fmt.Printf(" (%s)", source)
		}
		fmt.Println()
		fmt.Printf("    %s\n", oneLine(result.Content, 200))
	}
	return nil
}

// parseFilters converts repeated key=value flags into a metadata filter map.
func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	filters := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q (want key=value)", pair)
		}
		filters[key] = value
	}
	return filters, nil
}

// oneLine flattens whitespace and truncates for terminal display. The cut
// lands on a rune boundary so multibyte text stays valid.
func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
