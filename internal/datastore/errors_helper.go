// Package datastore provides error handling helpers for database operations
package datastore

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation, priority string, context ...interface{}) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}

	// Add context pairs
	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// validationError creates a validation error (not sent to users by default)
func validationError(message, field string, value interface{}) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

// conflictError creates a conflict error for constraint violations
func conflictError(err error, operation, conflictType string, context ...interface{}) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryConflict).
		Priority(errors.PriorityMedium).
		Context("operation", operation).
		Context("conflict_type", conflictType)

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// notFoundError creates a not found error (low priority, not shown to users)
func notFoundError(resource, identifier string) error {
	return errors.Newf("%s not found", resource).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("resource", resource).
		Context("identifier", identifier).
		Build()
}

// goneError creates an error for records whose addressable life has ended
func goneError(resource, identifier string) error {
	return errors.Newf("%s is gone", resource).
		Component("datastore").
		Category(errors.CategoryGone).
		Context("resource", resource).
		Context("identifier", identifier).
		Build()
}

// isUniqueConstraintError reports whether err is a unique constraint
// violation on any supported database engine.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}

	// SQLite surfaces a typed error with an extended result code.
	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "unique constraint") || // SQLite via gorm translation
		strings.Contains(errStr, "duplicate entry") || // MySQL error 1062
		strings.Contains(errStr, "duplicate key") // generic
}

// isDatabaseLocked checks if an error indicates database lock conditions
func isDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked")
}
