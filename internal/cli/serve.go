package cli

import (
	"github.com/akolanti/ChatAnalyzer/internal/mcpserver"
	"github.com/spf13/cobra"
)

func (c *cli) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job API",
		Long: `Serves the asynchronous job API: uploads and run commands are queued on
the worker pool and polled on /status/{id}. Requests need
"Authorization: Bearer $CHATANALYZER_AUTH_TOKEN".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			a.Serve(cmd.Context(), listen)
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen-addr", "", "server listen address (default from settings)")
	return cmd
}

func (c *cli) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Long: `Exposes quick_search, list_locations, list_conversations and list_runs to
MCP clients. Example client configuration:
  {"mcpServers": {"chatanalyzer": {"command": "/path/to/chatanalyzer", "args": ["mcp"]}}}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			server, err := mcpserver.New(a.Pipeline)
			if err != nil {
				return err
			}
			return server.Run(cmd.Context())
		},
	}
}
