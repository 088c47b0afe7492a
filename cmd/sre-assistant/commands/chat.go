package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moolen/sre-assistant/internal/agent/coordinator"
	"github.com/moolen/sre-assistant/internal/session"
)

var chatUser string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Read questions from stdin, one per line, and answer each as its own turn.
Questions and completed answers are stored in the session history of the
user. Type /clear to forget the history and exit or quit to leave.

When --config is set, changes to the log levels in the file are applied
without a restart.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", defaultUser(), "User id for logs, audit and history")
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg, appOptions{watchConfig: true})
	if err != nil {
		return err
	}
	defer a.close()

	store, err := session.NewStore(cfg.Sessions.Dir, cfg.Sessions.CacheSize)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	history, err := store.Messages(chatUser)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		fmt.Fprintf(out, "Resuming session with %d stored messages.\n", len(history))
	}
	fmt.Fprintln(out, "Ask a question (exit to quit).")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/clear":
			if err := store.Clear(chatUser); err != nil {
				return err
			}
			fmt.Fprintln(out, "History cleared.")
			continue
		}

		if err := chatTurn(ctx, cmd.OutOrStdout(), a.coordinator, store, line); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

// chatTurn records the question, runs the turn and records the answer of a
// turn that completed.
func chatTurn(ctx context.Context, out io.Writer, c *coordinator.Coordinator, store *session.Store, query string) error {
	if err := store.Append(chatUser, session.RoleUser, query); err != nil {
		return err
	}
	transcript, err := streamTurn(ctx, c, query, chatUser, newEventPrinter(out, false))
	if err != nil {
		return err
	}
	if transcript.Err() != nil {
		return nil
	}
	return store.Append(chatUser, session.RoleAssistant, transcript.Response())
}
