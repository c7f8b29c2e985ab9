package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"docqa/internal/adapter/chunker"
	"docqa/internal/usecase"
)

var (
	digestQuery  string
	digestSource string
	digestTopK   int
	digestJSON   bool
)

var digestCmd = &cobra.Command{
	Use:   "digest [file]",
	Short: "Answer a question about one text without keeping it",
	Long: `Index a single text (for example a scraped web page) in a temporary
collection, answer a question from it in doc mode and delete the collection.
Reads standard input when no file is given or the file is "-".

Examples:
  docqa digest page.txt --source https://example.com/post
  curl -s https://example.com | html2text | docqa digest -q "what changed?"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDigest,
}

func init() {
	rootCmd.AddCommand(digestCmd)
	digestCmd.Flags().StringVarP(&digestQuery, "query", "q", "", "question (default: summarise the key points)")
	digestCmd.Flags().StringVar(&digestSource, "source", "", "source name recorded with the passages (default: file name)")
	digestCmd.Flags().IntVarP(&digestTopK, "top-k", "k", 0, "number of passages (default from config)")
	digestCmd.Flags().BoolVar(&digestJSON, "json", false, "output as JSON")
}

func runDigest(cmd *cobra.Command, args []string) error {
	var (
		data   []byte
		err    error
		source = digestSource
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		if source == "" {
			source = "stdin"
		}
	} else {
		data, err = os.ReadFile(args[0])
		if source == "" {
			source = filepath.Base(args[0])
		}
	}
	if err != nil {
		return fmt.Errorf("failed to read text: %w", err)
	}

	cfg := GetConfig()
	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	emb, gen, err := a.models()
	if err != nil {
		return err
	}

	lineChunker := chunker.NewLineChunker(cfg.Ingest.ChunkTokens, cfg.Ingest.MaxTokens, a.counter)
	ephemeralUC := usecase.NewEphemeralUseCase(a.ingestUseCase(emb), a.answerUseCase(emb, gen),
		a.store, lineChunker, logger.Named("ephemeral"))

	out, err := ephemeralUC.AnswerFromText(cmd.Context(), source, string(data), digestQuery, digestTopK)
	if err != nil {
		return fmt.Errorf("digest failed: %w", err)
	}

	if digestJSON {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	printOutcome(cmd.OutOrStdout(), out.QueryOutcome)
	fmt.Fprintf(cmd.OutOrStdout(), "Indexing cost: $%.6f (%d passages, not kept)\n",
		out.Ingest.EmbeddingCost, out.Ingest.Paragraphs)
	return nil
}
