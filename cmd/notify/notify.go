// Package notify provides the notify command for truthscan
package notify

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/notify"
)

// Command returns a cobra command that sends a test alert through the
// configured shoutrrr service URLs
func Command(settings *conf.Settings) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test alert through the configured service URLs",
		Long: `Send a test alert through the operator alerting service.

Use this to verify the notify.urls configuration actually delivers
before relying on outage alerts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			notifier, err := notify.New(settings)
			if err != nil {
				return fmt.Errorf("failed to build notifier: %w", err)
			}
			if !notifier.Enabled() {
				return fmt.Errorf("alerting is disabled, set notify.enabled and notify.urls in the configuration")
			}
			if err := notifier.Test(message); err != nil {
				return fmt.Errorf("failed to send test alert: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test alert sent")
			return nil
		},
	}

	cmd.Flags().StringVar(&message, "message", "TruthScan operator alerting is working", "Text of the test alert")

	return cmd
}
