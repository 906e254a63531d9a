package cmd

import (
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/papapumpkin/xployt/internal/server"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Speaks MCP on stdin/stdout for editors and agents that launch xployt as a
tool server. Exposes run_pipeline, list_catalog and cache_stats. Logs go to
stderr so they never corrupt the protocol stream.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	a, err := buildApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	s := server.New(a.orch, server.Options{
		RunConfig:  cfg.RunConfig,
		Catalog:    a.catalog,
		CacheStats: a.cacheStats(),
		Logger:     log,
	})
	log.Info("mcp server starting on stdio", "version", server.Version)
	if err := mcpserver.ServeStdio(s.MCP()); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}
