package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/paperdex/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve search to AI assistants over MCP",
	Long: `Starts a Model Context Protocol server on stdio. Assistants can call the
search, similar and suggest tools and read papers as paperdex:// resources.

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "paperdex": {
        "command": "/path/to/paperdex",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	if searchService == nil {
		return errSearchNotConfigured
	}

	ports := &mcp.Ports{Search: searchService}
	if documentService != nil {
		ports.Document = documentService
	}

	server, err := mcp.NewServer(ports, version)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return server.Run(ctx)
}
