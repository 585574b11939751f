package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

var reembedCmd = &cobra.Command{
	Use:   "reembed [doc-id]",
	Short: "Re-embed a paper now",
	Long: `Re-chunks and re-embeds a paper on the current process, resuming an
interrupted job where it stopped. Unchanged papers are skipped unless --force is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runReembed,
}

var statusCmd = &cobra.Command{
	Use:   "status [doc-id]",
	Short: "Show the re-embedding state of a paper",
	Long: `Shows the re-embedding state of one paper. Without a paper ID, lists
every tracked paper, optionally only those in one state:

  paperdex status --status failed`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-embed papers that have no chunks",
	Long: `Finds papers whose chunks are missing, for example after a crash or a
failed job, and schedules them for re-embedding.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

var (
	reembedForce bool
	statusFilter string
)

func init() {
	reembedCmd.Flags().BoolVarP(&reembedForce, "force", "f", false, "re-embed even when the content is unchanged")
	rootCmd.AddCommand(reembedCmd)
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "list only papers in this state (clean, pending, embedding, failed)")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sweepCmd)
}

func runReembed(cmd *cobra.Command, args []string) error {
	if reembedService == nil {
		return errReembedNotConfigured
	}

	id, err := parseDocumentID(args[0])
	if err != nil {
		return err
	}

	st, err := reembedService.Reembed(context.Background(), id, reembedForce)
	if err != nil {
		return fmt.Errorf("re-embedding failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, st)
	}
	printState(cmd, st)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if reembedService == nil {
		return errReembedNotConfigured
	}

	if len(args) == 0 {
		return runStatusList(cmd)
	}

	id, err := parseDocumentID(args[0])
	if err != nil {
		return err
	}

	st, err := reembedService.Status(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, st)
	}
	printState(cmd, st)
	return nil
}

func runStatusList(cmd *cobra.Command) error {
	status := domain.EmbeddingStatus(strings.ToLower(strings.TrimSpace(statusFilter)))
	states, err := reembedService.List(context.Background(), status)
	if err != nil {
		return fmt.Errorf("failed to list states: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, states)
	}
	if len(states) == 0 {
		cmd.Println("No papers found.")
		return nil
	}

	for i := range states {
		st := &states[i]
		line := fmt.Sprintf("  %d\t%s", st.DocumentID, st.Status)
		if st.Total > 0 {
			line += fmt.Sprintf("\t%d/%d", st.Committed, st.Total)
		}
		if st.LastError != "" {
			line += "\t" + st.LastError
		}
		cmd.Println(line)
	}
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	if reembedService == nil {
		return errReembedNotConfigured
	}

	ids, err := reembedService.Sweep(context.Background())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, ids)
	}
	if len(ids) == 0 {
		cmd.Println("All papers have chunks.")
		return nil
	}

	cmd.Printf("Scheduled %d papers for re-embedding:\n", len(ids))
	for _, id := range ids {
		cmd.Printf("  %d\n", id)
	}
	return nil
}

func printState(cmd *cobra.Command, st *domain.EmbeddingState) {
	cmd.Printf("Paper %d: %s\n", st.DocumentID, st.Status)
	if st.Total > 0 {
		cmd.Printf("  Progress: %d/%d chunks\n", st.Committed, st.Total)
	}
	if st.Rearm {
		cmd.Println("  Content changed during the job; another pass is queued.")
	}
	if st.LastError != "" {
		cmd.Printf("  Last error: %s\n", st.LastError)
	}
	if !st.UpdatedAt.IsZero() {
		cmd.Printf("  Updated: %s\n", st.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}
