package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/bower"
	"github.com/aretw0/bower/internal/logging"
	mcpAdapter "github.com/aretw0/bower/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) admin server",
	Long: `Starts a Bower host administered over MCP.
This allows AI agents (like Claude Desktop) to create, inspect and expire
sessions as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Run: func(cmd *cobra.Command, args []string) {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		cfg, err := loadConfig(cmd)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}

		// Logs go to stderr so they never corrupt JSON-RPC on stdout.
		logger := logging.New(parseLogLevel(cfg.LogLevel))

		linger, err := time.ParseDuration(cfg.Linger)
		if err != nil {
			log.Fatalf("Invalid linger %q: %v", cfg.Linger, err)
		}
		sweep, err := time.ParseDuration(cfg.SweepInterval)
		if err != nil {
			log.Fatalf("Invalid sweep interval %q: %v", cfg.SweepInterval, err)
		}

		store, locker, closeStore, err := buildStore(cfg)
		if err != nil {
			log.Fatalf("Error building snapshot store: %v", err)
		}
		defer closeStore()

		app, _, err := buildApp(cfg, logger)
		if err != nil {
			log.Fatalf("Error loading seed repository: %v", err)
		}

		opts := []bower.Option{
			bower.WithLogger(logger),
			bower.WithLinger(linger),
			bower.WithSweepInterval(sweep),
			bower.WithSnapshotStore(store),
		}
		if locker != nil {
			opts = append(opts, bower.WithSweepLock(locker))
		}

		host, err := bower.New(app, opts...)
		if err != nil {
			log.Fatalf("Error initializing host: %v", err)
		}
		if err := host.Load(); err != nil {
			log.Fatalf("Error loading host: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := host.Unload(ctx); err != nil {
				logger.Error("failed to unload host", "err", err)
			}
		}()

		srv := mcpAdapter.NewServer(host)

		switch transport {
		case "stdio":
			log.SetOutput(os.Stderr)
			logger.Info("starting bower MCP server (stdio)")
			if err := srv.ServeStdio(); err != nil {
				logger.Error("MCP server execution failed", "err", err)
				os.Exit(1)
			}
		case "sse":
			logger.Info("starting bower MCP server (SSE)", "port", port)

			// Create a context that cancels on interrupt signal
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.ServeSSE(ctx, port); err != nil {
				// Ignore server closed error if it was caused by context cancellation
				if err != http.ErrServerClosed {
					logger.Error("MCP server execution failed", "err", err)
					os.Exit(1)
				}
			}
			logger.Info("MCP server stopped gracefully")
		default:
			log.Fatalf("Unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
