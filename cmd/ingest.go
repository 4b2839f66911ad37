package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lorebase/lorebase/internal/knowledge"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file> [file...]",
	Short: "Store files as documents in the knowledge base",
	Long: `Ingest reads each file and stores it as one document. The file name
becomes the title and the path is kept as source metadata, so search results
can be traced back to where they came from.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, logger, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	for _, path := range args {
		doc, err := documentFromFile(path)
		if err != nil {
			return err
		}
		if err := a.Knowledge.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		fmt.Printf("Ingested %s (id=%s)\n", path, doc.ID)
	}

	fmt.Printf("Done: %d file(s) ingested.\n", len(args))
	return nil
}

// documentFromFile builds a document from a file on disk. The generated ID
// is random; re-ingesting the same file adds a new document rather than
// replacing the old one.
func documentFromFile(path string) (knowledge.Document, error) {
	content, err := os.ReadFile(path) // #nosec G304 -- path comes from the CLI user
	if err != nil {
		return knowledge.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}

	return knowledge.Document{
		ID:      uuid.New().String(),
		Title:   filepath.Base(path),
		Content: string(content),
		Metadata: map[string]string{
			"source": path,
		},
	}, nil
}
