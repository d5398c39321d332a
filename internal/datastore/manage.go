package datastore

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	// DefaultSlowQueryThreshold defines the duration after which a query is
	// considered slow. 1 second accommodates migration batch queries which can
	// take 800-900ms while still surfacing queries that need attention.
	DefaultSlowQueryThreshold = 1 * time.Second

	// MaxColumnsForDetailedDisplay caps how many column names appear in
	// migration logs before only the count is shown.
	MaxColumnsForDetailedDisplay = 5

	// redactedMarker replaces credentials in logged connection strings.
	redactedMarker = "[REDACTED]"
)

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	// Use our custom GORM logger with metrics support
	return NewGormLogger(DefaultSlowQueryThreshold, gormlogger.Warn, getMetrics())
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	migrationStart := time.Now()
	migrationLogger := getFileLogger().With("db_type", dbType)

	if debug {
		migrationLogger.Debug("Starting database migration",
			"connection", redactSensitiveInfo(connectionInfo))
	}

	successCount, err := migrateTables(db, dbType)
	if err != nil {
		return err
	}

	if err := createOptimizedIndexes(db, dbType); err != nil {
		return err
	}

	migrationLogger.Debug("Database migration completed",
		"total_duration", time.Since(migrationStart),
		"tables_migrated", successCount)

	return nil
}

// migrateTables performs the actual table migrations
func migrateTables(db *gorm.DB, dbType string) (int, error) {
	tableMappings := []struct {
		model any
		name  string
	}{
		{&Detection{}, "detections"},
		{&DetectionPage{}, "detection_pages"},
	}

	successCount := 0
	for _, table := range tableMappings {
		if err := migrateTable(db, table.model, table.name, dbType); err != nil {
			return successCount, err
		}
		successCount++
	}

	return successCount, nil
}

// migrateTable migrates a single table with detailed logging
func migrateTable(db *gorm.DB, model any, tableName, dbType string) error {
	tableStart := time.Now()

	// Check if table exists before migration
	tableExists := db.Migrator().HasTable(model)

	// Get column information before migration (if table exists)
	columnsBefore := getTableColumns(db, model, tableExists)

	if err := db.AutoMigrate(model); err != nil {
		enhancedErr := errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Priority(errors.PriorityCritical).
			Context("operation", "auto_migrate_table").
			Context("db_type", dbType).
			Context("table", tableName).
			Build()

		getFileLogger().Error("Table migration failed",
			"table", tableName,
			"error", enhancedErr)
		return enhancedErr
	}

	// Determine what changed
	action, addedColumns := determineTableChanges(db, model, tableExists, columnsBefore)

	logTableMigration(tableName, action, addedColumns, time.Since(tableStart))

	return nil
}

// getTableColumns retrieves column names for a table
func getTableColumns(db *gorm.DB, model any, tableExists bool) []string {
	var columns []string
	if tableExists {
		if cols, err := db.Migrator().ColumnTypes(model); err == nil {
			for _, col := range cols {
				columns = append(columns, col.Name())
			}
		}
	}
	return columns
}

// determineTableChanges checks what changed after migration
func determineTableChanges(db *gorm.DB, model any, tableExists bool, columnsBefore []string) (action string, addedColumns []string) {
	action = "updated"

	if !tableExists {
		action = "created"
		// Get all columns for newly created table
		if cols, err := db.Migrator().ColumnTypes(model); err == nil {
			for _, col := range cols {
				addedColumns = append(addedColumns, col.Name())
			}
		}
	} else {
		// Check for new columns added
		addedColumns = findNewColumns(db, model, columnsBefore)
		if len(addedColumns) == 0 {
			action = "unchanged"
		}
	}

	return action, addedColumns
}

// findNewColumns identifies columns added during migration
func findNewColumns(db *gorm.DB, model any, columnsBefore []string) []string {
	var addedColumns []string

	if cols, err := db.Migrator().ColumnTypes(model); err == nil {
		for _, col := range cols {
			colName := col.Name()
			if !slices.Contains(columnsBefore, colName) {
				addedColumns = append(addedColumns, colName)
			}
		}
	}

	return addedColumns
}

// createOptimizedIndexes creates the composite index the retry worker scans.
// Column order (oracle_status, oracle_attempts) matches the worker's filter.
func createOptimizedIndexes(db *gorm.DB, dbType string) error {
	indexStart := time.Now()

	indexName := "idx_detections_oracle_retry"
	tableName := "detections"

	// AutoMigrate creates the index on fresh databases; this covers schemas
	// created before the index was declared on the model.
	if db.Migrator().HasIndex(&Detection{}, indexName) {
		return nil
	}

	if err := db.Migrator().CreateIndex(&Detection{}, indexName); err != nil {
		// Handle duplicate index errors gracefully
		errMsg := strings.ToLower(err.Error())
		isDuplicateIndex := strings.Contains(errMsg, "duplicate key name") ||
			strings.Contains(errMsg, "already exists") ||
			strings.Contains(errMsg, "duplicate")

		if isDuplicateIndex {
			return nil
		}

		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "create_optimized_index").
			Context("db_type", dbType).
			Context("index_name", indexName).
			Context("table_name", tableName).
			Build()
	}

	getFileLogger().Debug("Optimized index created",
		"index", indexName,
		"table", tableName,
		"duration", time.Since(indexStart),
		"db_type", dbType)

	return nil
}

// logTableMigration logs the result of a table migration
func logTableMigration(tableName, action string, addedColumns []string, duration time.Duration) {
	logAttrs := []any{
		"table", tableName,
		"action", action,
		"duration", duration,
	}

	if len(addedColumns) > 0 {
		logAttrs = append(logAttrs, "columns_added", len(addedColumns))
		if len(addedColumns) <= MaxColumnsForDetailedDisplay {
			logAttrs = append(logAttrs, "new_columns", addedColumns)
		}
	}

	getFileLogger().Debug("Table migration completed", logAttrs...)
}

// redactSensitiveInfo redacts the password from a MySQL DSN before it is
// logged. Plain file paths pass through unchanged.
func redactSensitiveInfo(dsn string) string {
	// url.Parse needs a scheme for correct parsing; the MySQL driver does not
	// require one, so add a dummy scheme when missing.
	parseInput := dsn
	needsDummyScheme := false
	if !strings.Contains(parseInput, "://") {
		switch {
		case strings.Contains(parseInput, "@"):
			parseInput = "dummy://" + parseInput
			needsDummyScheme = true
		case strings.HasPrefix(parseInput, "/"):
			parseInput = "dummy://dummyhost" + parseInput
			needsDummyScheme = true
		}
	}

	u, err := url.Parse(parseInput)
	if err != nil {
		// Cannot reliably locate the password; avoid echoing the raw DSN.
		return fmt.Sprintf("%s DSN", redactedMarker)
	}

	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), redactedMarker)
		}
	}

	sanitized := u.String()
	if needsDummyScheme {
		if after, ok := strings.CutPrefix(sanitized, "dummy://dummyhost"); ok {
			sanitized = after
		} else if after, ok := strings.CutPrefix(sanitized, "dummy://"); ok {
			sanitized = after
		}
	}

	return sanitized
}
