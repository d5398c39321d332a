package support

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/support"
)

// CollectCommand creates the support data collection subcommand
func CollectCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Collect config and recent logs for a support report",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Collecting support data...")

			// Config directory holds config.yaml and possibly a logs dir
			configPaths, err := conf.GetDefaultConfigPaths()
			if err != nil || len(configPaths) == 0 {
				configPaths = []string{"."}
			}

			systemID := "unknown"
			version := "unknown"
			if settings != nil {
				if settings.Main.Name != "" {
					systemID = settings.Main.Name
				}
				if settings.Version != "" {
					version = settings.Version
				}
			}

			// Create collector
			collector := support.NewCollector(
				configPaths[0], // Config directory
				".",            // Data directory
				systemID,
				version,
			)

			// Set collection options
			opts := support.DefaultCollectorOptions()
			opts.LogDuration = 7 * 24 * time.Hour // 1 week

			// Collect data
			ctx := context.Background()
			dump, err := collector.Collect(ctx, opts)
			if err != nil {
				fmt.Printf("Error collecting support data: %v\n", err)
				os.Exit(1)
			}

			// Create archive
			archiveData, err := collector.CreateArchive(ctx, dump, opts)
			if err != nil {
				fmt.Printf("Error creating archive: %v\n", err)
				os.Exit(1)
			}

			// Save to file
			filename := fmt.Sprintf("truthscan-support-%s.zip", dump.ID)
			if err := os.WriteFile(filename, archiveData, 0o600); err != nil {
				fmt.Printf("Error saving archive: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("Support data collected and saved to: %s\n", filename)
		},
	}
}
