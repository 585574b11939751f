package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

var (
	searchLimit    int
	searchMode     string
	searchSpace    int64
	searchMinScore float64
	similarLimit   int
	suggestLimit   int
	suggestSpace   int64
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed papers",
	Long: `Performs hybrid search across all indexed papers.
Combines full-text (BM25) and semantic (vector) retrieval and ranks
documents by their best matching chunk.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var similarCmd = &cobra.Command{
	Use:   "similar [doc-id]",
	Short: "Find papers similar to a paper",
	Long:  `Ranks papers by how close their chunks are to the chunks of the given paper.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSimilar,
}

var suggestCmd = &cobra.Command{
	Use:   "suggest [partial-title]",
	Short: "Complete a partial paper title",
	Long: `Lists titles of indexed papers that contain the given text, titles that
start with it first. At least two characters are needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSuggest,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", domain.DefaultSearchLimit, "maximum number of results")
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "", "retrieval mode: hybrid, semantic or keyword")
	searchCmd.Flags().Int64Var(&searchSpace, "space", 0, "restrict results to one search space")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "drop results scoring below this value")
	similarCmd.Flags().IntVarP(&similarLimit, "limit", "n", domain.DefaultSimilarLimit, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
	suggestCmd.Flags().IntVarP(&suggestLimit, "limit", "n", domain.DefaultSuggestLimit, "maximum number of titles")
	suggestCmd.Flags().Int64Var(&suggestSpace, "space", 0, "restrict titles to one search space")
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(suggestCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errSearchNotConfigured
	}

	opts := domain.SearchOptions{
		Limit:    searchLimit,
		Mode:     domain.SearchMode(strings.ToLower(searchMode)),
		MinScore: searchMinScore,
	}
	if cmd.Flags().Changed("space") {
		space := searchSpace
		opts.SearchSpaceID = &space
	}

	result, err := searchService.Search(context.Background(), args[0], opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, result)
	}
	return outputResultTable(cmd, result)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errSearchNotConfigured
	}

	id, err := parseDocumentID(args[0])
	if err != nil {
		return err
	}

	result, err := searchService.SimilarTo(context.Background(), id, similarLimit)
	if err != nil {
		return fmt.Errorf("similar search failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, result)
	}
	return outputResultTable(cmd, result)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errSearchNotConfigured
	}

	var space *int64
	if cmd.Flags().Changed("space") {
		space = &suggestSpace
	}

	titles, err := searchService.Suggest(context.Background(), args[0], space, suggestLimit)
	if err != nil {
		return fmt.Errorf("suggest failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, titles)
	}
	if len(titles) == 0 {
		cmd.Println("No suggestions.")
		return nil
	}
	for _, title := range titles {
		cmd.Println(title)
	}
	return nil
}

func outputResultTable(cmd *cobra.Command, result *domain.RankedResult) error {
	if result.Len() == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Printf("Results (%s):\n", result.Mode.Description())
	cmd.Println()
	for i := range result.Items {
		item := &result.Items[i]
		// Format: [N] Title (#ID) (Score)
		title := item.Document.Title
		if title == "" {
			title = "(untitled)"
		}

		cmd.Printf("  [%d] %s (#%d) (%.2f)\n", i+1, title, item.Document.ID, item.Score)
		if len(item.Sources) > 0 {
			cmd.Printf("      Matched: %s\n", strings.Join(item.Sources, ", "))
		}
		if item.Snippet != "" {
			cmd.Printf("      %s\n", snippet(item.Snippet, 160))
		}
		cmd.Println()
	}

	insights := result.Insights()
	cmd.Printf("%d papers, average score %.2f", insights.Total, insights.AverageScore)
	if len(insights.LiteratureTypes) > 0 {
		types := make([]string, 0, len(insights.LiteratureTypes))
		for t, n := range insights.LiteratureTypes {
			types = append(types, fmt.Sprintf("%s %d", t, n))
		}
		sort.Strings(types)
		cmd.Printf(" (%s)", strings.Join(types, ", "))
	}
	cmd.Println()
	return nil
}

// snippet collapses whitespace and truncates to n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
