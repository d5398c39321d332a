// Package scan provides the scan command for truthscan
package scan

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/imagefetch"
	"github.com/undetectableai/truthscan-twitter-bot/internal/ingest"
	"github.com/undetectableai/truthscan-twitter-bot/internal/oracle"
	"github.com/undetectableai/truthscan-twitter-bot/internal/pageid"
)

// scanTimeout bounds one classification including the image fetch and
// the oracle's own retry budget.
const scanTimeout = 2 * time.Minute

// Command creates the scan command for one-shot classification of a
// single image from a URL or local file.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		save bool
		note string
	)

	cmd := &cobra.Command{
		Use:   "scan [url|file]",
		Short: "Classify a single image from a URL or local file",
		Long:  "Run one image through the AI-detection oracle and print the verdict. With --save the result is persisted and gets a public result page.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(settings, args[0], save, note)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Persist the result and print its page URL")
	cmd.Flags().StringVar(&note, "note", "", "Caller text shown on the saved result page")

	return cmd
}

func runScan(settings *conf.Settings, target string, save bool, note string) error {
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	if save {
		return scanAndSave(ctx, settings, target, note)
	}

	req, err := buildRequest(ctx, settings, target)
	if err != nil {
		return err
	}

	client, err := oracle.NewClient(oracle.ConfigFromSettings(settings), nil)
	if err != nil {
		return fmt.Errorf("error initializing oracle client: %w", err)
	}
	defer client.Close()

	result, err := client.Classify(ctx, req)
	if err != nil {
		if errors.Is(err, oracle.ErrRejected) {
			return fmt.Errorf("the oracle declined to analyze this image: %w", err)
		}
		return fmt.Errorf("classification failed: %w", err)
	}

	printVerdict(&datastore.Detection{
		AIProbability: &result.Probability,
		Confidence:    result.Confidence,
	})
	fmt.Printf("Latency: %dms\n", result.RawLatencyMs)
	return nil
}

// scanAndSave runs the image through the same direct submission path the
// HTTP API uses, so the saved record behaves exactly like an API one.
func scanAndSave(ctx context.Context, settings *conf.Settings, target, note string) error {
	if !settings.DatabaseActive() {
		return fmt.Errorf("saving requires a database output, enable sqlite or mysql in the configuration")
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

	oracleClient, err := oracle.NewClient(oracle.ConfigFromSettings(settings), nil)
	if err != nil {
		return fmt.Errorf("error initializing oracle client: %w", err)
	}
	defer oracleClient.Close()

	fetcher := imagefetch.New(settings, nil)
	pages := pageid.New(store, settings, nil)
	orchestrator := ingest.New(settings, store, oracleClient, fetcher, pages, nil)

	sub := &ingest.DirectSubmission{
		SourceHandle: "cli",
		Description:  note,
	}
	if isURL(target) {
		sub.ImageURL = target
	} else {
		data, err := os.ReadFile(target)
		if err != nil {
			return fmt.Errorf("error reading image file: %w", err)
		}
		sub.ImageData = data
		sub.ContentType = http.DetectContentType(data)
	}

	result, err := orchestrator.ProcessDirect(ctx, sub)
	if err != nil {
		return fmt.Errorf("submission failed: %w", err)
	}

	if result.Duplicate {
		fmt.Println("Already analyzed, returning the existing result.")
	}
	printVerdict(result.Detection)
	fmt.Printf("Page: %s\n", settings.PageURL(result.Page.PageID))
	return nil
}

// buildRequest turns the scan target into an oracle request. URLs are
// downloaded through the same fetcher the ingestion pipeline uses, so
// size and content type limits apply here too.
func buildRequest(ctx context.Context, settings *conf.Settings, target string) (*oracle.Request, error) {
	if isURL(target) {
		fetcher := imagefetch.New(settings, nil)
		img, err := fetcher.Fetch(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("error fetching image: %w", err)
		}
		return &oracle.Request{ImageData: img.Data, ContentType: img.ContentType}, nil
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("error reading image file: %w", err)
	}
	return &oracle.Request{ImageData: data, ContentType: http.DetectContentType(data)}, nil
}

func isURL(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

func printVerdict(detection *datastore.Detection) {
	if detection.AIProbability == nil {
		fmt.Println("Result: analysis pending, the retry worker will finish it")
		return
	}
	fmt.Printf("Result: %s (%.1f%% AI probability)\n", detection.FinalResult(), *detection.AIProbability*100)
	if detection.Confidence != nil {
		fmt.Printf("Confidence: %.1f%%\n", *detection.Confidence*100)
	}
}
