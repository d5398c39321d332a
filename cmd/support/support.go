// Package support provides the support command for truthscan
package support

import (
	"github.com/spf13/cobra"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
)

// Command creates the support parent command
func Command(settings *conf.Settings) *cobra.Command {
	supportCmd := &cobra.Command{
		Use:   "support",
		Short: "Commands related to support operations in truthscan",
	}

	supportCmd.AddCommand(CollectCommand(settings))

	return supportCmd
}
