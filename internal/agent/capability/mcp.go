package capability

import (
	"context"
	"fmt"

	mcpclient "github.com/moolen/sre-assistant/internal/mcp/client"
)

// SessionRun returns a RunFunc that opens a fresh MCP session per query,
// reasons over the tools the session lists and closes it on every exit path.
// The loop never outlives the session.
func SessionRun(settings LoopSettings, opener mcpclient.Opener) RunFunc {
	return func(ctx context.Context, query string) (string, error) {
		return mcpclient.WithSession(ctx, opener, func(ctx context.Context, session mcpclient.Session) (string, error) {
			toolbox, err := mcpclient.Toolbox(ctx, session)
			if err != nil {
				return "", fmt.Errorf("failed to list tools: %w", err)
			}
			return settings.Run(ctx, query, toolbox)
		})
	}
}
