package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moolen/sre-assistant/internal/agent/coordinator"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the reasoning oracle is reachable",
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

		report := a.coordinator.Health(ctx)
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
		if report.Status != coordinator.StatusHealthy {
			return fmt.Errorf("assistant is %s", report.Status)
		}
		return nil
	},
}
