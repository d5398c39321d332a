package datastore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func probability(v float64) *float64 {
	return &v
}

func TestFinalResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		probability *float64
		want        string
	}{
		{"unclassified", nil, ""},
		{"certain ai", probability(0.99), ResultAIGenerated},
		{"ai threshold is inclusive", probability(0.7), ResultAIGenerated},
		{"just below ai threshold", probability(0.699), ResultUncertain},
		{"middle of the range", probability(0.5), ResultUncertain},
		{"just above human threshold", probability(0.301), ResultUncertain},
		{"human threshold is inclusive", probability(0.3), ResultHumanCreated},
		{"certain human", probability(0.01), ResultHumanCreated},
		{"zero probability", probability(0.0), ResultHumanCreated},
		{"full probability", probability(1.0), ResultAIGenerated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Detection{AIProbability: tt.probability}
			assert.Equal(t, tt.want, d.FinalResult())
		})
	}
}

func TestDetectionImageHelpers(t *testing.T) {
	t.Parallel()

	var empty Detection
	assert.False(t, empty.HasBlob())
	assert.False(t, empty.HasImage())

	withURL := Detection{ImageURL: "https://pbs.twimg.com/media/x.jpg"}
	assert.False(t, withURL.HasBlob())
	assert.True(t, withURL.HasImage())

	withBlob := Detection{ImageBlob: []byte{0x89, 0x50}}
	assert.True(t, withBlob.HasBlob())
	assert.True(t, withBlob.HasImage())
}

func TestParseSQLOperation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sql       string
		operation string
		table     string
	}{
		{"SELECT * FROM detections WHERE id = ?", "select", "detections"},
		{"select view_count from `detection_pages` where page_id = ?", "select", "detection_pages"},
		{"INSERT INTO detection_pages (page_id) VALUES (?)", "insert", "detection_pages"},
		{"UPDATE detections SET ai_probability = ? WHERE id = ?", "update", "detections"},
		{"DELETE FROM detections WHERE id = ?", "delete", "detections"},
		{"CREATE TABLE IF NOT EXISTS detections (id text)", "create", "detections"},
		{"PRAGMA foreign_keys = ON", sqlUnknown, sqlUnknown},
	}

	for _, tt := range tests {
		operation, table := parseSQLOperation(tt.sql)
		assert.Equal(t, tt.operation, operation, "sql: %s", tt.sql)
		assert.Equal(t, tt.table, table, "sql: %s", tt.sql)
	}
}

func TestCategorizeError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"sqlite unique", fmt.Errorf("UNIQUE constraint failed: detection_pages.page_id"), "constraint_violation"},
		{"mysql duplicate", fmt.Errorf("Error 1062: Duplicate entry 'abc123' for key 'PRIMARY'"), "constraint_violation"},
		{"locked", fmt.Errorf("database is locked"), "database_locked"},
		{"connection", fmt.Errorf("dial tcp: connection refused"), "connection_error"},
		{"unmatched", assert.AnError, "other"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, categorizeError(tt.err), tt.name)
	}
}
