package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docqa/internal/adapter/fs"
	"docqa/internal/usecase"
)

var (
	ingestCollection string
	ingestMode       string
	ingestJSON       bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Embed text files into a collection",
	Long: `Split extracted text files into paragraphs, embed them and store them in a
collection. Form feeds in a file separate pages; paragraphs are separated by
blank lines.

Examples:
  docqa ingest .                          # Append to the default collection
  docqa ingest ./handbook -c handbook --mode overwrite
  docqa ingest report.txt -c q3`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVarP(&ingestCollection, "collection", "c", "", "collection id (default _default)")
	ingestCmd.Flags().StringVar(&ingestMode, "mode", "append", "write mode: append or overwrite")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output as JSON")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	mode, err := usecase.ParseWriteMode(ingestMode)
	if err != nil {
		return err
	}

	cfg := GetConfig()
	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)
	files, err := walker.Walk(path)
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", path, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no files matching %v under %s", cfg.Ingest.Includes, path)
	}

	emb, err := a.embedder()
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	var bar *progressbar.ProgressBar
	if !ingestJSON {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("[cyan]Reading[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(cmd.ErrOrStderr())
			}),
		)
	}
	progress := func() {
		if bar != nil {
			bar.Add(1)
		}
	}

	result, err := a.ingestUseCase(emb).IngestFiles(cmd.Context(), ingestCollection, mode,
		files, fs.Reader{}, cfg.Ingest.Workers, progress)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if ingestJSON {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "\nIngest complete:\n")
	fmt.Fprintf(out, "  Collection:     %s (%s)\n", result.CollectionID, mode)
	fmt.Fprintf(out, "  Files ingested: %d\n", result.FilesIngested)
	fmt.Fprintf(out, "  Files skipped:  %d\n", result.FilesSkipped)
	fmt.Fprintf(out, "  Paragraphs:     %d\n", result.Paragraphs)
	fmt.Fprintf(out, "  Dimension:      %d\n", result.Dimension)
	fmt.Fprintf(out, "  Embedding cost: $%.6f (%d tokens)\n", result.EmbeddingCost, result.PromptTokens)

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}
	return nil
}
