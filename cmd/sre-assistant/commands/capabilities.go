package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the registered specialists in routing order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
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

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDESCRIPTION")
		for _, c := range a.coordinator.Capabilities() {
			summary, _, _ := strings.Cut(strings.TrimSpace(c.Description()), "\n")
			fmt.Fprintf(w, "%s\t%s\n", c.Name(), summary)
		}
		return w.Flush()
	},
}
