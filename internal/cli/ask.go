package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"docqa/internal/domain"
	"docqa/internal/usecase"
)

var (
	askText       string
	askMode       string
	askTopK       int
	askCollection string
	askSources    []string
	askJSON       bool
	askBatch      bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from a collection or from general knowledge",
	Long: `Answer a question. In auto mode the answer comes from retrieved passages
when the request names documents that exist, and from general knowledge
otherwise. Doc mode never falls back; general mode never reads documents.

Examples:
  docqa ask -q "what are the warning signs?" -c handbook
  docqa ask -q "summarise chapter 2" -s report.txt --mode doc
  docqa ask -q "what is a vector index?" --mode general --json
  docqa ask --batch -c handbook < questions.txt`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askText, "query", "q", "", "question (required)")
	askCmd.Flags().StringVarP(&askMode, "mode", "m", "auto", "answer mode: auto, doc or general")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of passages (default from config)")
	askCmd.Flags().StringVarP(&askCollection, "collection", "c", "", "collection id")
	askCmd.Flags().StringSliceVarP(&askSources, "source", "s", nil, "only use passages from these sources")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON (one object per line with --batch)")
	askCmd.Flags().BoolVar(&askBatch, "batch", false, "read one question per line from standard input")
}

func runAsk(cmd *cobra.Command, args []string) error {
	mode, err := domain.ParseMode(askMode)
	if err != nil {
		return err
	}
	if !askBatch && strings.TrimSpace(askText) == "" {
		return fmt.Errorf("required flag \"query\" not set")
	}

	a, err := openApp(GetConfig(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	emb, gen, err := a.models()
	if err != nil {
		return err
	}

	answerUC := a.answerUseCase(emb, gen)
	ask := func(query string) (domain.QueryOutcome, error) {
		out, err := answerUC.Answer(cmd.Context(), usecase.AnswerRequest{
			Query:        query,
			Mode:         mode,
			TopK:         askTopK,
			Sources:      askSources,
			CollectionID: askCollection,
		})
		if err != nil {
			if domain.IsRetryable(err) {
				return out, fmt.Errorf("answer failed, model service unavailable (retry later): %w", err)
			}
			return out, fmt.Errorf("answer failed: %w", err)
		}
		return out, nil
	}

	if askBatch {
		return runAskBatch(cmd, ask)
	}

	out, err := ask(askText)
	if err != nil {
		return err
	}
	if askJSON {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	printOutcome(cmd.OutOrStdout(), out)
	return nil
}

// runAskBatch answers every non-empty line of stdin in order and stops at
// the first failure.
func runAskBatch(cmd *cobra.Command, ask func(string) (domain.QueryOutcome, error)) error {
	w := cmd.OutOrStdout()
	enc := json.NewEncoder(w)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	n := 0
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		n++

		out, err := ask(query)
		if err != nil {
			return fmt.Errorf("question %d: %w", n, err)
		}
		if askJSON {
			if err := enc.Encode(out); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(w, "=== [%d] %s\n", n, query)
		printOutcome(w, out)
		fmt.Fprintln(w)
	}
	return scanner.Err()
}

func printOutcome(w io.Writer, out domain.QueryOutcome) {
	fmt.Fprintln(w, out.Answer)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Mode: %s", out.ModeUsed)
	if out.CollectionID != "" {
		fmt.Fprintf(w, "  Collection: %s", out.CollectionID)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Cost: $%.6f (embedding $%.6f, chat $%.6f, transcribe $%.6f)\n",
		out.Costs.Total, out.Costs.Embedding, out.Costs.Chat, out.Costs.Transcribe)

	if len(out.Sources) == 0 {
		return
	}
	fmt.Fprintf(w, "\nSources:\n")
	for i, s := range out.Sources {
		fmt.Fprintf(w, "  [%d] %s p.%d (score: %.3f) %s\n", i+1, s.Source, s.Page, s.Score, strings.TrimSpace(s.Snippet))
	}
}
