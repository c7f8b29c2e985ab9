package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"docqa/internal/domain"
)

var (
	costCollection string
	costSeconds    float64
	costJSON       bool
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Record and inspect pending transcription costs",
	Long: `Transcription happens outside docqa. Its cost is recorded against a
collection and billed to the next document answer from that collection.`,
}

var costAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Record the cost of transcribing media into a collection",
	Example: `  docqa cost add -c lectures --seconds 1800`,
	Args:    cobra.NoArgs,
	RunE:    runCostAdd,
}

var costShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show pending transcription costs",
	Args:  cobra.NoArgs,
	RunE:  runCostShow,
}

func init() {
	rootCmd.AddCommand(costCmd)
	costCmd.AddCommand(costAddCmd, costShowCmd)
	costCmd.PersistentFlags().StringVarP(&costCollection, "collection", "c", "", "collection id (default _default)")
	costCmd.PersistentFlags().BoolVar(&costJSON, "json", false, "output as JSON")
	costAddCmd.Flags().Float64Var(&costSeconds, "seconds", 0, "duration of the transcribed media in seconds (required)")
	costAddCmd.MarkFlagRequired("seconds")
}

func runCostAdd(cmd *cobra.Command, args []string) error {
	if costSeconds <= 0 {
		return fmt.Errorf("%w: --seconds must be positive", domain.ErrInvalidAmount)
	}

	a, err := openApp(GetConfig(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	amount, err := a.ingestUseCase(nil).RecordTranscription(costCollection, costSeconds)
	if err != nil {
		return err
	}

	id, _ := domain.CollectionOrDefault(costCollection)
	pending, err := a.ledger.Peek(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded $%.6f for %s (pending $%.6f)\n", amount, id, pending)
	return nil
}

func runCostShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(GetConfig(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	pending := make(map[string]float64)
	if costCollection != "" {
		id, err := domain.CollectionOrDefault(costCollection)
		if err != nil {
			return err
		}
		v, err := a.ledger.Peek(id)
		if err != nil {
			return err
		}
		pending[id] = v
	} else {
		entries, err := a.ledger.All()
		if err != nil {
			return err
		}
		for id, e := range entries {
			pending[id] = e.PendingTranscribeCost
		}
	}

	out := cmd.OutOrStdout()
	if costJSON {
		data, _ := json.MarshalIndent(pending, "", "  ")
		fmt.Fprintln(out, string(data))
		return nil
	}

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "%-32s $%.6f\n", id, pending[id])
	}
	return nil
}
