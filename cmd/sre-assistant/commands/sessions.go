package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moolen/sre-assistant/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect or clear stored chat history",
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <user>",
	Short: "Print the stored history of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		sess, err := store.Load(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sess)
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear <user>",
	Short: "Delete the stored history of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		if err := store.Clear(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", store.Path(args[0]))
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
}

func openSessionStore() (*session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return session.NewStore(cfg.Sessions.Dir, cfg.Sessions.CacheSize)
}
