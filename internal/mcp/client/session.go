// Package client opens short-lived MCP sessions to tool servers and exposes
// their tools to the reasoning loop.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/moolen/sre-assistant/internal/logging"
)

// DefaultInitTimeout bounds the MCP handshake when the opener has none.
// Tool servers started through uvx may need to download packages first.
const DefaultInitTimeout = 60 * time.Second

// Session is an initialized MCP connection. It is used by one invocation and
// must be closed by it.
type Session interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
	Close() error
}

// Opener starts a new Session.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Session, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context) (Session, error) {
	return f(ctx)
}

// StdioOpener launches an MCP server as a subprocess speaking JSON-RPC over
// stdin and stdout.
type StdioOpener struct {
	// Name labels log lines of this server.
	Name    string
	Command string
	Args    []string
	// Env is added to the inherited environment of the subprocess.
	Env         map[string]string
	InitTimeout time.Duration
}

// Open starts the subprocess and performs the MCP handshake.
func (o *StdioOpener) Open(ctx context.Context) (Session, error) {
	logger := logging.GetLogger("mcp.client").WithContext(ctx).WithField("server", o.Name)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Debug("starting MCP server: %s %v", o.Command, o.Args)
	c, err := mcpclient.NewStdioMCPClient(o.Command, envStrings(o.Env), o.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start MCP server %s: %w", o.Command, err)
	}

	if stderr, ok := mcpclient.GetStderr(c); ok {
		go drainStderr(stderr, logger)
	}

	timeout := o.InitTimeout
	if timeout <= 0 {
		timeout = DefaultInitTimeout
	}
	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    "sre-assistant",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(initCtx, req); err != nil {
		if closeErr := c.Close(); closeErr != nil {
			logger.Debug("error closing failed MCP client: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize MCP session with %s: %w", o.Command, err)
	}

	logger.Debug("MCP session initialized")
	return &stdioSession{client: c}, nil
}

type stdioSession struct {
	client *mcpclient.Client
}

func (s *stdioSession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	resp, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list MCP tools: %w", err)
	}
	return resp.Tools, nil
}

func (s *stdioSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return s.client.CallTool(ctx, req)
}

func (s *stdioSession) Close() error {
	return s.client.Close()
}

// WithSession opens a session, runs fn with it and closes it on every exit
// path, including a panic in fn.
func WithSession[T any](ctx context.Context, opener Opener, fn func(ctx context.Context, session Session) (T, error)) (result T, err error) {
	session, err := opener.Open(ctx)
	if err != nil {
		return result, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			logging.GetLogger("mcp.client").WithContext(ctx).Debug("error closing MCP session: %v", closeErr)
		}
	}()
	return fn(ctx, session)
}

func envStrings(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func drainStderr(r io.Reader, logger *logging.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("server stderr: %s", scanner.Text())
	}
}
