package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/moolen/sre-assistant/internal/agent/kubernetes"
	"github.com/moolen/sre-assistant/internal/agent/tools"
	"github.com/moolen/sre-assistant/internal/logging"
	"github.com/moolen/sre-assistant/internal/mcp"
)

var (
	mcpTransport    string
	mcpHTTPAddr     string
	mcpEndpointPath string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Serve the cluster operations and the ask tool over MCP",
	Long: `Start a Model Context Protocol server exposing the fine-grained cluster
operations and an "ask" tool that runs a whole coordinator turn.

Supports two transport modes:
  - stdio: Standard input/output mode (default, for subprocess-based MCP clients)
  - http: Streamable HTTP mode with a /health endpoint`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpTransport, "transport", "stdio", "Transport type: stdio or http")
	mcpCmd.Flags().StringVar(&mcpHTTPAddr, "http-addr", ":8082", "HTTP server address (host:port)")
	mcpCmd.Flags().StringVar(&mcpEndpointPath, "mcp-endpoint", "/mcp", "HTTP endpoint path for MCP requests")
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if mcpTransport != "stdio" && mcpTransport != "http" {
		return fmt.Errorf("invalid transport type: %s (must be 'http' or 'stdio')", mcpTransport)
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	clusterTools, err := kubernetes.Toolbox(a.ops, cfg.Kubernetes.DefaultCluster, cfg.Kubernetes.AllowWrite)
	if err != nil {
		return err
	}
	toolbox, err := tools.NewRegistry(append(clusterTools.List(), a.coordinator.AskTool())...)
	if err != nil {
		return err
	}
	srv, err := mcp.NewServer(Version, toolbox)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if mcpTransport == "stdio" {
		return srv.ServeStdio()
	}
	return serveMCPHTTP(ctx, srv.MCPServer())
}

func serveMCPHTTP(ctx context.Context, mcpServer *server.MCPServer) error {
	logger := logging.GetLogger("mcp")
	endpointPath := mcpEndpointPath
	if endpointPath == "" {
		endpointPath = "/mcp"
	} else if endpointPath[0] != '/' {
		endpointPath = "/" + endpointPath
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	httpSrv := &http.Server{
		Addr:              mcpHTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	streamable := server.NewStreamableHTTPServer(
		mcpServer,
		server.WithEndpointPath(endpointPath),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)
	mux.Handle(endpointPath, streamable)

	logger.Info("Starting HTTP server on %s (endpoint: %s)", mcpHTTPAddr, endpointPath)
	errCh := make(chan error, 1)
	go func() {
		if err := streamable.Start(mcpHTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return streamable.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
