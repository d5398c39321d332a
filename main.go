package main

import (
	"fmt"
	"os"
	"time"

	"github.com/undetectableai/truthscan-twitter-bot/cmd"
	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/logging"
	"github.com/undetectableai/truthscan-twitter-bot/internal/telemetry"
)

// version and buildDate are populated at build time through ldflags.
var version = "dev"
var buildDate = "unknown"

func main() {
	os.Exit(run())
}

// run keeps the deferred cleanups ahead of the exit code, os.Exit inside
// main would skip them.
func run() int {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		return 1
	}

	settings.Version = version
	settings.BuildDate = buildDate

	logging.Configure(&settings.Main.Log, settings.Debug)

	if err := telemetry.Init(settings); err != nil {
		logging.Warn("error telemetry unavailable", "error", err)
	}
	defer telemetry.Flush(3 * time.Second)

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	return 0
}
