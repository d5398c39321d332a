package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/undetectableai/truthscan-twitter-bot/cmd/notify"
	"github.com/undetectableai/truthscan-twitter-bot/cmd/page"
	"github.com/undetectableai/truthscan-twitter-bot/cmd/scan"
	"github.com/undetectableai/truthscan-twitter-bot/cmd/serve"
	"github.com/undetectableai/truthscan-twitter-bot/cmd/support"
	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "truthscan",
		Short: "TruthScan CLI",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	// Add sub-commands to the root command.
	subcommands := []*cobra.Command{
		serve.Command(settings),
		scan.Command(settings),
		page.Command(settings),
		notify.Command(settings),
		support.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// Re-apply log configuration once flags have overridden settings.
		logging.Configure(&settings.Main.Log, settings.Debug)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
