package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var apiURL string

// systemCmd toggles the remote control loop.
var systemCmd = &cobra.Command{
	Use:   "system [start|stop]",
	Short: "Enable or disable the control loop of a running server",
	Args:  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{
		"start",
		"stop",
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAPIClient(apiURL).post("/api/v1/system/"+args[0], nil); err != nil {
			return fmt.Errorf("failed to %s control loop: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Control loop %s requested\n", args[0])
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable-optimization <id>",
	Short: "Retire an optimization from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAPIClient(apiURL).post("/api/v1/optimizations/"+args[0]+"/disable", nil); err != nil {
			return fmt.Errorf("failed to disable %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Optimization %s disabled\n", args[0])
		return nil
	},
}

var tickCmd = &cobra.Command{
	Use:       "tick <sampler|pool|optimization>",
	Short:     "Run one tick of a task immediately",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"sampler", "pool", "optimization"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAPIClient(apiURL).post("/api/v1/tasks/"+args[0]+"/tick", nil); err != nil {
			return fmt.Errorf("failed to tick %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s ticked\n", args[0])
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{systemCmd, disableCmd, tickCmd} {
		cmd.Flags().StringVar(&apiURL, "api-url", "http://127.0.0.1:8380", "API server URL")
		rootCmd.AddCommand(cmd)
	}
}
