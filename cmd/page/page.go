// Package page provides the page command for truthscan
package page

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

// Command creates the page parent command grouping the operator actions
// on published result pages.
func Command(settings *conf.Settings) *cobra.Command {
	pageCmd := &cobra.Command{
		Use:   "page",
		Short: "Inspect and manage published result pages",
	}

	pageCmd.AddCommand(infoCommand(settings))
	pageCmd.AddCommand(deleteCommand(settings))
	pageCmd.AddCommand(promoteCommand(settings))

	return pageCmd
}

func infoCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "info [pageid]",
		Short: "Show the detection behind a page identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store datastore.Interface) error {
				return printInfo(settings, store, args[0])
			})
		},
	}
}

func deleteCommand(settings *conf.Settings) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete [pageid]",
		Short: "Soft delete a detection, its page starts answering 410",
		Long:  "Retire the detection behind a page identifier. The identifier stays reserved and the page answers 410 Gone from then on. This cannot be undone.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("deletion is permanent, re-run with --yes to confirm")
			}
			return withStore(settings, func(store datastore.Interface) error {
				detection, _, err := store.GetByPageID(args[0])
				switch {
				case errors.IsGone(err):
					fmt.Println("Page is already removed.")
					return nil
				case err != nil:
					return err
				}
				if err := store.SoftDeleteDetection(detection.ID); err != nil {
					return err
				}
				fmt.Printf("Removed %s, the page now answers 410 Gone.\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the permanent deletion")

	return cmd
}

func promoteCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "promote [pageid]",
		Short: "Allow search engines to index a result page",
		Long:  "Flip the page's robots meta tag from noindex to indexable. Pages start unindexable and are only promoted through this command.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store datastore.Interface) error {
				detection, _, err := store.GetByPageID(args[0])
				if err != nil {
					return err
				}
				if detection.RobotsIndex {
					fmt.Println("Page is already indexable.")
					return nil
				}
				if err := store.SetRobotsIndex(detection.ID, true); err != nil {
					return err
				}
				fmt.Printf("Promoted %s, search engines may index it now.\n", args[0])
				return nil
			})
		},
	}
}

// withStore opens the configured datastore around one operation.
func withStore(settings *conf.Settings, fn func(datastore.Interface) error) error {
	if !settings.DatabaseActive() {
		return fmt.Errorf("no database output enabled, enable sqlite or mysql in the configuration")
	}

	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return fmt.Errorf("error opening datastore: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Printf("error closing datastore: %v\n", err)
		}
	}()

	return fn(store)
}

func printInfo(settings *conf.Settings, store datastore.Interface, pageID string) error {
	detection, page, err := store.GetByPageID(pageID)
	switch {
	case errors.IsGone(err):
		fmt.Printf("Page:       %s (removed)\n", pageID)
		fmt.Printf("Views:      %d\n", page.ViewCount)
		fmt.Printf("Created:    %s\n", page.CreatedAt.Format(time.RFC3339))
		return nil
	case err != nil:
		return err
	}

	source := detection.Source
	if detection.SourceHandle != "" {
		source += " by @" + detection.SourceHandle
	}

	fmt.Printf("Page:       %s\n", page.PageID)
	fmt.Printf("URL:        %s\n", settings.PageURL(page.PageID))
	fmt.Printf("Detection:  %s\n", detection.ID)
	fmt.Printf("Source:     %s\n", source)
	if detection.AIProbability != nil {
		fmt.Printf("Result:     %s (%.1f%% AI probability)\n", detection.FinalResult(), *detection.AIProbability*100)
	} else {
		fmt.Printf("Result:     pending (oracle status %s, %d attempts)\n", detection.OracleStatus, detection.OracleAttempts)
	}
	fmt.Printf("Indexable:  %t\n", detection.RobotsIndex)
	fmt.Printf("Views:      %d\n", page.ViewCount)
	fmt.Printf("Created:    %s\n", detection.CreatedAt.Format(time.RFC3339))
	return nil
}
