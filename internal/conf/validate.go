// conf/validate.go

package conf

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateTwitterSettings(&settings.Twitter); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateOracleSettings(&settings.Oracle); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateDirectAPISettings(&settings.DirectAPI); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validatePageIDSettings(&settings.PageID); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateOutputSettings(&settings.Output); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateMQTTSettings(&settings.MQTT); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// If there are any errors, return the ValidationError
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validateWebServerSettings checks the port and cache TTLs.
func validateWebServerSettings(settings *WebServerSettings) error {
	var errs []string

	if settings.Enabled {
		port, err := strconv.Atoi(settings.Port)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, "WebServer port must be a number between 1 and 65535")
		}
	}

	if settings.Cache.PageTTL < 0 || settings.Cache.NegativeTTL < 0 {
		errs = append(errs, "WebServer cache TTLs must not be negative")
	}

	if settings.PublicURL != "" &&
		!strings.HasPrefix(settings.PublicURL, "http://") &&
		!strings.HasPrefix(settings.PublicURL, "https://") {
		errs = append(errs, "WebServer publicurl must start with http:// or https://")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// validateTwitterSettings requires the shared secret when the webhook is on.
func validateTwitterSettings(settings *TwitterSettings) error {
	var errs []string

	if settings.Enabled {
		if !settings.ConsumerSecret.IsSet() {
			errs = append(errs, "Twitter consumersecret is required when the webhook is enabled")
		}
		if settings.Reply.Enabled && !settings.BearerToken.IsSet() {
			errs = append(errs, "Twitter bearertoken is required when replies are enabled")
		}
	}

	if settings.Reply.MaxAttempts < 1 {
		errs = append(errs, "Twitter reply maxattempts must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// validateOracleSettings checks endpoint, timeout and retry bounds.
func validateOracleSettings(settings *OracleSettings) error {
	var errs []string

	if settings.Endpoint == "" {
		errs = append(errs, "Oracle endpoint must not be empty")
	}
	if settings.Timeout < 1 {
		errs = append(errs, "Oracle timeout must be at least 1 second")
	}
	if settings.MaxRetries < 0 {
		errs = append(errs, "Oracle maxretries must not be negative")
	}
	if settings.TotalBudget < settings.Timeout {
		errs = append(errs, "Oracle totalbudget must be at least the per-attempt timeout")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// validateDirectAPISettings checks keys and limits when the API is enabled.
func validateDirectAPISettings(settings *DirectAPISettings) error {
	var errs []string

	if settings.Enabled && len(settings.Keys) == 0 {
		errs = append(errs, "DirectAPI requires at least one key when enabled")
	}
	if settings.RateLimit < 1 {
		errs = append(errs, "DirectAPI ratelimit must be at least 1 request per minute")
	}
	if settings.MaxUploadMB < 1 {
		errs = append(errs, "DirectAPI maxuploadmb must be at least 1")
	}
	if settings.Enabled && len(settings.AllowedTypes) == 0 {
		errs = append(errs, "DirectAPI requires at least one allowed image type")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// validatePageIDSettings keeps the identifier space and retry bound sane.
func validatePageIDSettings(settings *PageIDSettings) error {
	var errs []string

	if settings.Length < 4 || settings.Length > 16 {
		errs = append(errs, "PageID length must be between 4 and 16")
	}
	if settings.MaxAttempts < 1 {
		errs = append(errs, "PageID maxattempts must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// validateOutputSettings requires exactly one active database.
func validateOutputSettings(settings *OutputSettings) error {
	var errs []string

	if settings.SQLite.Enabled && settings.MySQL.Enabled {
		errs = append(errs, "only one database output can be enabled at a time")
	}
	if !settings.SQLite.Enabled && !settings.MySQL.Enabled {
		errs = append(errs, "one database output must be enabled")
	}
	if settings.SQLite.Enabled && settings.SQLite.Path == "" {
		errs = append(errs, "SQLite path must not be empty")
	}
	if settings.MySQL.Enabled {
		if settings.MySQL.Host == "" || settings.MySQL.Database == "" {
			errs = append(errs, "MySQL host and database must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// validateMQTTSettings checks broker syntax when publishing is enabled.
func validateMQTTSettings(settings *MQTTSettings) error {
	var errs []string

	if settings.Enabled {
		if settings.Broker == "" {
			errs = append(errs, "MQTT broker must not be empty when enabled")
		}
		if settings.Topic == "" {
			errs = append(errs, "MQTT topic must not be empty when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
