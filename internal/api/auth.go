// internal/api/auth.go
package api

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

const (
	// apiKeyHeader carries the credential on every authenticated request.
	apiKeyHeader = "X-API-Key"
	// credentialContextKey stores the caller's key fingerprint for
	// downstream middleware and handlers.
	credentialContextKey = "api_credential"
)

var errMissingAPIKey = errors.NewStd("missing or invalid API key")

// AuthMiddleware validates the X-API-Key header against the configured
// credentials before any request body is read.
func (c *Controller) AuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			key := ctx.Request().Header.Get(apiKeyHeader)
			if !c.Settings.ValidateAPIKey(key) {
				if m := c.apiMetrics(); m != nil {
					m.IncrementAuthFailures()
				}
				return c.HandleError(ctx, errMissingAPIKey,
					"A valid X-API-Key header is required", http.StatusUnauthorized)
			}

			ctx.Set(credentialContextKey, keyFingerprint(key))
			return next(ctx)
		}
	}
}

// keyFingerprint derives a short stable identifier from an API key so
// logs and rate limit buckets never hold the raw credential.
func keyFingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:8]
}
