package datastore

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
)

// createTestSettings returns minimal settings for a temporary test database.
func createTestSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings := &conf.Settings{}
	settings.Main.Name = "truthscan-test"
	return settings
}

// createDatabase initializes a temporary database for testing purposes.
// It ensures the database connection is opened and handles potential errors.
func createDatabase(t *testing.T, settings *conf.Settings) Interface {
	t.Helper()
	tempDir := t.TempDir()
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = tempDir + "/test.db"

	dataStore := New(settings)

	// Attempt to open a database connection.
	require.NoError(t, dataStore.Open(), "Failed to open database")

	// Ensure the database is closed after the test completes.
	t.Cleanup(func() {
		assert.NoError(t, dataStore.Close(), "Failed to close datastore")
	})

	return dataStore
}

// staticAllocator hands out identifiers from the given list in order and
// fails once the list is exhausted.
func staticAllocator(ids ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		if i >= len(ids) {
			return "", fmt.Errorf("allocator exhausted after %d identifiers", len(ids))
		}
		id := ids[i]
		i++
		return id, nil
	}
}

// newTestDetection builds a detection with the fields ingest would populate
// for a mention. An empty eventID leaves the idempotency key unset, matching
// a direct API submission.
func newTestDetection(eventID string) *Detection {
	d := &Detection{
		ID:           uuid.New().String(),
		SourceHandle: "suspicious_sam",
		Source:       SourceMention,
		ImageURL:     "https://pbs.twimg.com/media/GkTq3xWboAA.jpg",
		OracleStatus: OracleStatusPending,
	}
	if eventID != "" {
		d.SourceEventID = &eventID
		d.SourceTweetID = "1755556666777788889"
	}
	return d
}

// rawDB exposes the embedded GORM handle for verification queries.
func rawDB(t *testing.T, ds Interface) *DataStore {
	t.Helper()

	sqliteStore, ok := ds.(*SQLiteStore)
	require.True(t, ok, "Interface must be *SQLiteStore for this test")
	return &sqliteStore.DataStore
}
