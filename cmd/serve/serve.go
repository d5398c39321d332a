// Package serve provides the serve command for truthscan
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/httpcontroller"
	"github.com/undetectableai/truthscan-twitter-bot/internal/imagefetch"
	"github.com/undetectableai/truthscan-twitter-bot/internal/ingest"
	"github.com/undetectableai/truthscan-twitter-bot/internal/logging"
	"github.com/undetectableai/truthscan-twitter-bot/internal/mqtt"
	"github.com/undetectableai/truthscan-twitter-bot/internal/notify"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability"
	"github.com/undetectableai/truthscan-twitter-bot/internal/oracle"
	"github.com/undetectableai/truthscan-twitter-bot/internal/pageid"
	"github.com/undetectableai/truthscan-twitter-bot/internal/twitter"
)

// mqttConnectTimeout bounds the initial broker connection at startup so a
// dead broker delays the server instead of blocking it forever.
const mqttConnectTimeout = 30 * time.Second

// Command creates the serve command that runs the webhook, result page
// and API server until interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook, result page and API server",
		Long:  "Start the HTTP server that receives Twitter webhook events, serves detection result pages and accepts direct API submissions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunServer(settings)
		},
	}

	// Set up flags specific to the serve command
	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port for the HTTP server")
	cmd.Flags().StringVar(&settings.WebServer.PublicURL, "publicurl", viper.GetString("webserver.publicurl"), "Externally visible base URL used in page links")
	cmd.Flags().BoolVar(&settings.Worker.Enabled, "worker", viper.GetBool("worker.enabled"), "Run the background retry worker")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Expose a standalone Prometheus metrics endpoint")
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "listen", viper.GetString("telemetry.listen"), "Listen address and port of the metrics endpoint")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}

// RunServer assembles the detection pipeline and the HTTP server and
// blocks until an interrupt arrives. Teardown order is the reverse of
// startup: the server drains first so no handler touches a component
// that has already stopped.
func RunServer(settings *conf.Settings) error {
	log := logging.ForService("serve")

	if !settings.DatabaseActive() {
		return fmt.Errorf("no database output enabled, enable sqlite or mysql in the configuration")
	}

	// Open the datastore
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return fmt.Errorf("error opening datastore: %w", err)
	}
	defer closeDataStore(store)

	// Initialize Prometheus metrics
	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("error initializing metrics: %w", err)
	}

	// Oracle client for AI-probability classification
	oracleClient, err := oracle.NewClient(oracle.ConfigFromSettings(settings), metrics.Oracle)
	if err != nil {
		return fmt.Errorf("error initializing oracle client: %w", err)
	}
	defer oracleClient.Close()

	fetcher := imagefetch.New(settings, metrics.ImageFetch)
	pages := pageid.New(store, settings, metrics.Page)

	// Ingestion orchestrator with its optional collaborators
	orchestrator := ingest.New(settings, store, oracleClient, fetcher, pages, metrics.Ingest)

	if settings.Twitter.Enabled && settings.Twitter.Reply.Enabled {
		orchestrator.SetReplyPoster(twitter.NewReplyClient(settings))
		log.Info("reply posting enabled", "handle", settings.Twitter.BotHandle)
	}

	mqttClient, err := connectMQTT(settings, metrics)
	if err != nil {
		// Detection events are best effort, the pipeline runs without them.
		log.Warn("MQTT publisher unavailable", "error", err)
	} else if mqttClient != nil {
		orchestrator.SetPublisher(mqttClient)
		defer mqttClient.Disconnect()
	}

	if settings.Notify.Enabled {
		notifier, err := notify.New(settings)
		if err != nil {
			log.Warn("operator alerting unavailable", "error", err)
		} else {
			orchestrator.SetNotifier(notifier)
		}
	}

	// Initialize and start the HTTP server
	httpServer := httpcontroller.New(settings, store, fetcher, orchestrator, metrics)
	httpServer.Start()

	// Initialize the wait group to wait for all goroutines to finish
	var wg sync.WaitGroup
	quitChan := make(chan struct{})

	// Background retry worker for failed classifications and replies
	var worker *ingest.Worker
	if settings.Worker.Enabled {
		worker = ingest.NewWorker(orchestrator)
		worker.Start(context.Background())
	}

	// Standalone telemetry endpoint, separate from the public server
	startTelemetryEndpoint(&wg, settings, metrics, quitChan)

	// Start quit signal monitor
	monitorInterrupt(quitChan)

	log.Info("server started",
		"port", settings.WebServer.Port,
		"twitter", settings.Twitter.Enabled,
		"direct_api", settings.DirectAPI.Enabled,
		"worker", settings.Worker.Enabled)

	<-quitChan

	if worker != nil {
		worker.Stop()
	}
	if err := httpServer.Shutdown(); err != nil {
		log.Error("error during server shutdown", "error", err)
	}
	wg.Wait()

	return nil
}

// connectMQTT builds and connects the detection event publisher. Returns
// nil without error when publishing is disabled.
func connectMQTT(settings *conf.Settings, metrics *observability.Metrics) (mqtt.Client, error) {
	if !settings.MQTT.Enabled {
		return nil, nil
	}

	client, err := mqtt.NewClient(settings, metrics.MQTT)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), mqttConnectTimeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

// startTelemetryEndpoint starts the standalone Prometheus endpoint if enabled.
func startTelemetryEndpoint(wg *sync.WaitGroup, settings *conf.Settings, metrics *observability.Metrics, quitChan chan struct{}) {
	if !settings.Telemetry.Enabled {
		return
	}

	endpoint, err := observability.NewEndpoint(settings, metrics)
	if err != nil {
		logging.Error("error initializing telemetry endpoint", "error", err)
		return
	}
	endpoint.Start(wg, quitChan)
}

// monitorInterrupt listens for SIGINT and SIGTERM and triggers the
// application shutdown process.
func monitorInterrupt(quitChan chan struct{}) {
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		<-sigChan

		logging.Info("received interrupt, stopping server")
		close(quitChan)
	}()
}

func closeDataStore(store datastore.Interface) {
	if err := store.Close(); err != nil {
		logging.Error("error closing datastore", "error", err)
	} else {
		logging.Info("datastore connection closed")
	}
}
