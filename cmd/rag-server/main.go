// Package main provides the HTTP and MCP server entry point for docrag.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/docrag/internal/api"
	"github.com/bull/docrag/internal/config"
	mcpserver "github.com/bull/docrag/internal/mcp"
	"github.com/bull/docrag/internal/rag"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rag-server",
	Short: "Retrieval-augmented generation server",
	Long: `Serves document indexes over HTTP and the Model Context Protocol.

Environment variables:
  QDRANT_HOST     Qdrant hostname (default: localhost)
  QDRANT_PORT     Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY  API key for embeddings and chat (required unless a base URL is set)
  OPENAI_BASE_URL OpenAI-compatible endpoint
  GITHUB_TOKEN    GitHub token for github:// inputs (optional)`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API with MCP mounted at /mcp",
	RunE:  runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP over stdin/stdout for local clients",
	RunE:  runMCP,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, mcpCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and opens the service. Logs go to stderr so
// stdio MCP keeps stdout for the protocol.
func setup(ctx context.Context) (*config.Config, *rag.Service, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	svc, err := rag.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open service: %w", err)
	}
	return cfg, svc, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, svc, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	tools := mcpserver.NewServer(&mcpserver.Config{Service: svc, Version: version})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(svc, tools.HTTPHandler(true), logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.Server.Addr, "mcp", "/mcp", "health", "/health")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	_, svc, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	logger.Info("Starting docrag MCP server (stdio mode)")
	server := mcpserver.NewServer(&mcpserver.Config{Service: svc, Version: version})
	return server.Run(ctx)
}
