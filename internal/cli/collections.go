package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docqa/internal/domain"
)

var collectionsJSON bool

var collectionsCmd = &cobra.Command{
	Use:     "collections",
	Aliases: []string{"col"},
	Short:   "Inspect and delete collections",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections with their size",
	Args:  cobra.NoArgs,
	RunE:  runCollectionsList,
}

var collectionsStatsCmd = &cobra.Command{
	Use:   "stats <id>",
	Short: "Show one collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsStats,
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a collection and its pending costs",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsDelete,
}

func init() {
	rootCmd.AddCommand(collectionsCmd)
	collectionsCmd.AddCommand(collectionsListCmd, collectionsStatsCmd, collectionsDeleteCmd)
	collectionsCmd.PersistentFlags().BoolVar(&collectionsJSON, "json", false, "output as JSON")
}

func runCollectionsList(cmd *cobra.Command, args []string) error {
	a, err := openApp(GetConfig(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := a.store.List()
	if err != nil {
		return err
	}

	stats := make([]domain.CollectionStats, 0, len(ids))
	for _, id := range ids {
		st, err := a.store.Stats(id)
		if err != nil {
			return err
		}
		stats = append(stats, st)
	}

	out := cmd.OutOrStdout()
	if collectionsJSON {
		data, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Fprintln(out, string(data))
		return nil
	}
	if len(stats) == 0 {
		fmt.Fprintln(out, "No collections.")
		return nil
	}
	fmt.Fprintf(out, "%-32s %10s %6s\n", "ID", "PARAGRAPHS", "DIM")
	for _, st := range stats {
		fmt.Fprintf(out, "%-32s %10d %6d\n", st.ID, st.Count, st.Dimension)
	}
	return nil
}

func runCollectionsStats(cmd *cobra.Command, args []string) error {
	id, err := domain.CollectionOrDefault(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(GetConfig(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.store.Stats(id)
	if err != nil {
		return err
	}
	pending, err := a.ledger.Peek(id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if collectionsJSON {
		data, _ := json.MarshalIndent(struct {
			domain.CollectionStats
			PendingTranscribeCost float64 `json:"pending_transcribe_cost"`
		}{st, pending}, "", "  ")
		fmt.Fprintln(out, string(data))
		return nil
	}
	if !st.Exists {
		return fmt.Errorf("collection %s does not exist", id)
	}
	fmt.Fprintf(out, "Collection:          %s\n", st.ID)
	fmt.Fprintf(out, "Paragraphs:          %d\n", st.Count)
	fmt.Fprintf(out, "Dimension:           %d\n", st.Dimension)
	fmt.Fprintf(out, "Sources:             %s\n", strings.Join(st.Sources, ", "))
	fmt.Fprintf(out, "Pending transcribe:  $%.6f\n", pending)
	return nil
}

func runCollectionsDelete(cmd *cobra.Command, args []string) error {
	id, err := domain.CleanCollectionID(args[0])
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: %q", domain.ErrInvalidIdentifier, args[0])
	}

	a, err := openApp(GetConfig(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Delete(id); err != nil {
		return err
	}
	if err := a.ledger.Forget(id); err != nil {
		return fmt.Errorf("collection deleted but its ledger entry was not: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted collection %s\n", id)
	return nil
}
