package datastore

import (
	"fmt"

	sqldriver "github.com/go-sql-driver/mysql"
	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func validateMySQLConfig(settings *conf.Settings) error {
	mysqlSettings := settings.Output.MySQL
	if mysqlSettings.Username == "" {
		return validationError("MySQL username must not be empty", "output.mysql.username", mysqlSettings.Username)
	}
	if mysqlSettings.Database == "" {
		return validationError("MySQL database name must not be empty", "output.mysql.database", mysqlSettings.Database)
	}
	if mysqlSettings.Host == "" {
		return validationError("MySQL host must not be empty", "output.mysql.host", mysqlSettings.Host)
	}
	if mysqlSettings.Port == "" {
		return validationError("MySQL port must not be empty", "output.mysql.port", mysqlSettings.Port)
	}
	return nil
}

// Open sets up the MySQL database connection
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err // validateMySQLConfig returns a properly formatted error
	}

	// Build the DSN through the driver config so credentials with special
	// characters survive escaping.
	cfg := sqldriver.Config{
		User:   store.Settings.Output.MySQL.Username,
		Passwd: store.Settings.Output.MySQL.Password.Value(),
		Net:    "tcp",
		Addr:   fmt.Sprintf("%s:%s", store.Settings.Output.MySQL.Host, store.Settings.Output.MySQL.Port),
		DBName: store.Settings.Output.MySQL.Database,
		Params: map[string]string{
			"charset":   "utf8mb4",
			"parseTime": "True",
			"loc":       "Local",
		},
	}
	dsn := cfg.FormatDSN()

	// Create a new GORM logger
	newLogger := createGormLogger()

	// Open the MySQL database
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: newLogger})
	if err != nil {
		getFileLogger().Error("Failed to open MySQL database",
			"host", store.Settings.Output.MySQL.Host,
			"port", store.Settings.Output.MySQL.Port,
			"database", store.Settings.Output.MySQL.Database,
			"error", err)
		return fmt.Errorf("failed to open MySQL database: %w", err)
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "MySQL", dsn)
}

// Close releases MySQL database connections
func (store *MySQLStore) Close() error {
	// Ensure that the store's DB field is not nil to avoid a panic
	if store.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	// Retrieve the generic database object from the GORM DB object
	sqlDB, err := store.DB.DB()
	if err != nil {
		getFileLogger().Error("Failed to retrieve generic DB object", "error", err)
		return err
	}

	// Close the generic database object, which closes the underlying SQL database connection
	if err := sqlDB.Close(); err != nil {
		getFileLogger().Error("Failed to close MySQL database", "error", err)
		return err
	}

	if store.Settings.Debug {
		getFileLogger().Debug("MySQL database connection closed")
	}
	return nil
}
