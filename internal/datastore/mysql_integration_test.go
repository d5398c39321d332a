// mysql_integration_test.go: runs the persistence contract against a real
// MySQL server. The unique constraint detection differs between engines
// ("Duplicate entry" vs "UNIQUE constraint failed"), so the conflict paths
// need coverage on both.
package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

func startMySQL(t *testing.T) *conf.Settings {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping MySQL container test in short mode")
	}

	ctx := context.Background()
	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("truthscan"),
		tcmysql.WithUsername("truthscan"),
		tcmysql.WithPassword("truthscan-test-password"),
	)
	if err != nil {
		t.Skipf("could not start MySQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	settings := createTestSettings(t)
	settings.Output.MySQL.Enabled = true
	settings.Output.MySQL.Username = "truthscan"
	settings.Output.MySQL.Password = conf.Secret("truthscan-test-password")
	settings.Output.MySQL.Database = "truthscan"
	settings.Output.MySQL.Host = host
	settings.Output.MySQL.Port = port.Port()
	return settings
}

func TestMySQLStore_PersistenceContract(t *testing.T) {
	settings := startMySQL(t)

	ds := New(settings)
	require.NoError(t, ds.Open(), "Failed to open MySQL database")
	t.Cleanup(func() {
		assert.NoError(t, ds.Close(), "Failed to close MySQL datastore")
	})

	// Save allocates the page in the same transaction.
	detection := newTestDetection("evt-mysql-1")
	page, err := ds.SaveDetection(detection, staticAllocator("mys001"))
	require.NoError(t, err)
	assert.Equal(t, "mys001", page.PageID)

	// MySQL reports duplicates as "Duplicate entry"; the conflict
	// classification must recognize that wording.
	duplicate := newTestDetection("evt-mysql-1")
	_, err = ds.SaveDetection(duplicate, staticAllocator("mys002"))
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err), "expected conflict on duplicate source event, got %v", err)

	// Page identifier collisions redraw inside the transaction.
	second := newTestDetection("evt-mysql-2")
	page, err = ds.SaveDetection(second, staticAllocator("mys001", "mys003"))
	require.NoError(t, err)
	assert.Equal(t, "mys003", page.PageID)

	// Same-value updates report zero affected rows on MySQL; enrichment must
	// not mistake that for a missing record.
	require.NoError(t, ds.UpdateEnrichment(second.ID, "desc", "meta"))
	require.NoError(t, ds.UpdateEnrichment(second.ID, "desc", "meta"))

	// Verdict single-shot semantics hold on MySQL too.
	require.NoError(t, ds.UpdateClassification(second.ID, 0.8, nil))
	err = ds.UpdateClassification(second.ID, 0.2, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	// Soft delete burns the page identifier.
	require.NoError(t, ds.SoftDeleteDetection(second.ID))
	_, _, err = ds.GetByPageID("mys003")
	require.Error(t, err)
	assert.True(t, errors.IsGone(err))
}
