package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/xployt/internal/server"
	"github.com/papapumpkin/xployt/internal/ui"
)

// shutdownGrace bounds how long in-flight requests get after a signal.
const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve runs over HTTP, server-sent events and MCP",
	Long: `Starts an HTTP server with:

  POST /run-pipeline       run and return the manifest as JSON
  POST /run-pipeline-sse   run and stream progress as server-sent events
  GET  /healthz            liveness
       /mcp                MCP over streamable HTTP

Both run endpoints take {"id": "...", "path": "..."}. At most one run per id
is in flight; a second request for a busy id gets 409.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: listen_addr from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.ListenAddr = addr
	}
	log := newLogger(cfg)
	printer := ui.NewWriter(cmd.ErrOrStderr())
	ctx, cancel := setupSignalContext(printer)
	defer cancel()

	a, err := buildApp(ctx, cfg, log)
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
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	printer.Info(fmt.Sprintf("listening on %s", cfg.ListenAddr))
	log.Info("server started", "addr", cfg.ListenAddr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownGrace)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("serve: shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
