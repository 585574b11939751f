package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

var addCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Add a paper to the index",
	Long: `Stores the text of a paper and schedules its embedding.
Use "-" to read the text from standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed papers",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show [doc-id]",
	Short: "Show paper details",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Remove a paper from the index",
	Long:  `Deletes a paper together with its chunks and re-embedding state.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var (
	addTitle string
	addType  string
	addSpace int64
	addID    int64

	listSpace int64
)

func init() {
	addCmd.Flags().StringVarP(&addTitle, "title", "t", "", "paper title (default: file name)")
	addCmd.Flags().StringVar(&addType, "type", "", "literature type (article, review, thesis, ...)")
	addCmd.Flags().Int64Var(&addSpace, "space", 0, "search space the paper belongs to")
	addCmd.Flags().Int64Var(&addID, "id", 0, "replace the content of an existing paper")
	listCmd.Flags().Int64Var(&listSpace, "space", 0, "only list papers in this search space")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errDocumentNotConfigured
	}

	content, err := readContent(cmd, args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	if addID != 0 {
		if err := documentService.UpdateContent(ctx, addID, content); err != nil {
			return fmt.Errorf("failed to update paper: %w", err)
		}
		cmd.Printf("Paper %d updated; re-embedding scheduled.\n", addID)
		return nil
	}

	title := addTitle
	if title == "" && args[0] != "-" {
		title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}

	doc := &domain.Document{
		Title:          title,
		Content:        content,
		LiteratureType: addType,
		SearchSpaceID:  addSpace,
	}
	if err := documentService.Add(ctx, doc); err != nil {
		return fmt.Errorf("failed to add paper: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, doc.Metadata())
	}
	cmd.Printf("Added paper %d: %s\n", doc.ID, doc.Title)
	return nil
}

func readContent(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		in := cmd.InOrStdin()
		if isTerminal(in) {
			cmd.PrintErrln("Reading paper text from standard input; finish with Ctrl+D.")
		}
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func runList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errDocumentNotConfigured
	}

	var space *int64
	if cmd.Flags().Changed("space") {
		s := listSpace
		space = &s
	}

	docs, err := documentService.List(context.Background(), space)
	if err != nil {
		return fmt.Errorf("failed to list papers: %w", err)
	}

	if jsonOutput {
		meta := make([]domain.DocumentMetadata, len(docs))
		for i := range docs {
			meta[i] = docs[i].Metadata()
		}
		return printJSON(cmd, meta)
	}

	if len(docs) == 0 {
		cmd.Println("No papers indexed.")
		return nil
	}

	for i := range docs {
		cmd.Printf("  %d\t%s\n", docs[i].ID, docs[i].Title)
	}
	cmd.Println()
	cmd.Printf("Total: %d papers\n", len(docs))
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errDocumentNotConfigured
	}

	id, err := parseDocumentID(args[0])
	if err != nil {
		return err
	}

	details, err := documentService.GetDetails(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to get paper: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, details)
	}

	status := string(details.Status)
	if status == "" {
		status = "not scheduled"
	}

	cmd.Printf("Paper: %d\n\n", details.ID)
	cmd.Printf("  Title:        %s\n", details.Title)
	if details.LiteratureType != "" {
		cmd.Printf("  Type:         %s\n", details.LiteratureType)
	}
	cmd.Printf("  Search space: %d\n", details.SearchSpaceID)
	cmd.Printf("  Chunks:       %d\n", details.ChunkCount)
	cmd.Printf("  Embedding:    %s\n", status)
	if details.LastError != "" {
		cmd.Printf("  Last error:   %s\n", details.LastError)
	}
	cmd.Printf("  Created:      %s\n", details.CreatedAt.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Updated:      %s\n", details.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errDocumentNotConfigured
	}

	id, err := parseDocumentID(args[0])
	if err != nil {
		return err
	}

	if err := documentService.Delete(context.Background(), id); err != nil {
		return fmt.Errorf("failed to delete paper: %w", err)
	}

	cmd.Printf("Paper %d deleted.\n", id)
	return nil
}
