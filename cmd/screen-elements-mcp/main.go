package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/screen-elements-mcp/internal/config"
	"github.com/ironsheep/screen-elements-mcp/internal/logging"
	"github.com/ironsheep/screen-elements-mcp/internal/pipeline"
	"github.com/ironsheep/screen-elements-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("screen-elements-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("screen-elements-mcp - MCP server for screenshot element detection and grouping")
			fmt.Println()
			fmt.Println("Usage: screen-elements-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  SCREEN_MCP_CONFIG=path.yaml         YAML configuration file")
			fmt.Println("  SCREEN_MCP_LOG_LEVEL=debug          Log level (error, warn, info, debug)")
			fmt.Println("  SCREEN_MCP_TEXT_ENGINE=heuristic    Text detector (tesseract, heuristic)")
			fmt.Println("  SCREEN_MCP_LABELER_URL=http://...   Enable the labeling service")
			fmt.Println("  SCREEN_MCP_LABELER_API_KEY=...      Bearer token for the labeling service")
			fmt.Println("  TESSDATA_PREFIX=/usr/share/...      Tesseract language data")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "screen-elements-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logs go to stderr; stdout is for MCP protocol
	logger := logging.New(cfg.LogLevel, os.Stderr)
	logger.Debug("starting", "version", Version, "built", BuildTime, "commit", GitCommit)

	analyzer, err := pipeline.New(cfg.ObjectDetector(), cfg.TextDetector(), cfg.Labeler(), cfg.Pipeline(), logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(analyzer, logger).Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
