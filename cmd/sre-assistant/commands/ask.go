package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moolen/sre-assistant/internal/agent/coordinator"
)

var (
	askJSON bool
	askUser string
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask one question and stream the answer",
	Long: `Run a single turn. Progress is printed as it happens and the final answer
is rendered as markdown on a terminal.

Examples:
  sre-assistant ask "What are my AWS costs for the last 30 days?"
  sre-assistant ask --json "List all namespaces"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Emit events as JSON lines")
	askCmd.Flags().StringVar(&askUser, "user", defaultUser(), "User id for logs, audit and history")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	printer := newEventPrinter(cmd.OutOrStdout(), askJSON)
	transcript, err := streamTurn(ctx, a.coordinator, strings.Join(args, " "), askUser, printer)
	if err != nil {
		return err
	}
	return transcript.Err()
}

// streamTurn prints every event of a turn as it arrives and returns the
// transcript.
func streamTurn(ctx context.Context, c *coordinator.Coordinator, query, userID string, printer *eventPrinter) (*coordinator.Transcript, error) {
	transcript := &coordinator.Transcript{}
	var printErr error
	for event := range c.RunTurn(ctx, query, userID) {
		transcript.Events = append(transcript.Events, event)
		if printErr == nil {
			printErr = printer.Print(event)
		}
	}
	if printErr != nil {
		return transcript, fmt.Errorf("failed to print event: %w", printErr)
	}
	return transcript, nil
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
