// config.go: truthscan configuration, loaded and managed with viper
package conf

import (
	"crypto/rand"
	_ "embed" // Embedding default config file
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

//go:embed config.yaml
var defaultConfig string

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled bool   // true to enable this log
	Path    string // path to log file
	Level   string // log level: debug, info, warn, error
	JSON    bool   // true to emit JSON instead of text
}

// MainSettings contains general application settings
type MainSettings struct {
	Name string    // name of this node, also used as MQTT client id
	Log  LogConfig // main log settings
}

// WebServerSettings contains the settings for the HTTP server
type WebServerSettings struct {
	Enabled   bool      // true to enable web server
	Port      string    // port for web server
	PublicURL string    // externally visible base URL used when building page links
	Debug     bool      // true to enable debug mode
	Log       LogConfig // web server log settings
	Cache     CacheSettings
}

// CacheSettings controls page-render caching behavior
type CacheSettings struct {
	Enabled     bool // true to enable the in-process render cache
	PageTTL     int  // seconds a successful render stays cacheable
	NegativeTTL int  // seconds a 404/410 response stays cacheable
}

// SecuritySettings contains TLS and host settings for the public endpoint
type SecuritySettings struct {
	Host            string // hostname for AutoTLS certificate issuance
	AutoTLS         bool   // true to enable AutoTLS
	RedirectToHTTPS bool   // true to redirect plain HTTP to HTTPS
}

// TwitterSettings contains the inbound webhook and reply configuration
type TwitterSettings struct {
	Enabled        bool   // true to register webhook routes
	BotHandle      string // handle of the bot account, mentions of it are ignored as media authors
	APIURL         string // Twitter API base URL for posting replies
	ConsumerSecret Secret // shared secret for CRC handshake and payload signatures
	BearerToken    Secret // token used to authenticate reply posts
	Reply          ReplySettings
}

// ReplySettings controls the outbound mention reply
type ReplySettings struct {
	Enabled     bool // true to post a reply after classification
	MaxAttempts int  // total reply attempts including out-of-band retries
}

// OracleSettings configures the external AI-detection API client
type OracleSettings struct {
	Endpoint    string // base URL of the detection API
	APIKey      Secret // API key sent on each request
	Timeout     int    // seconds, per-attempt request timeout
	MaxRetries  int    // retry attempts for retryable failures
	BackoffMs   int    // initial backoff in milliseconds, doubled per retry
	TotalBudget int    // seconds, hard ceiling for one classification including retries
}

// DirectAPISettings configures the direct image submission endpoint
type DirectAPISettings struct {
	Enabled      bool
	Keys         []string // accepted API keys for the X-API-Key header
	RateLimit    int      // sustained requests per minute per key
	RateBurst    int      // burst allowance per key
	MaxUploadMB  int      // request payload ceiling in megabytes
	AllowedTypes []string // accepted image content types
}

// PageIDSettings configures short page identifier generation
type PageIDSettings struct {
	Length      int // identifier length in characters
	MaxAttempts int // collision retries before giving up
}

// ImageFetchSettings configures remote image retrieval
type ImageFetchSettings struct {
	MaxSizeMB         int     // largest remote image accepted
	Timeout           int     // seconds per fetch
	RequestsPerSecond float64 // outbound rate limit
	UserAgent         string
}

// WorkerSettings configures the background retry worker
type WorkerSettings struct {
	Enabled           bool
	Interval          int // seconds between passes
	BatchSize         int // max records handled per pass and per queue
	OracleMaxAttempts int // total classification attempts including the ingest-time one
}

// OutputSettings contains database selection
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// SQLiteSettings contains the SQLite database configuration
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings contains the MySQL database configuration
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password Secret
	Database string
	Host     string
	Port     string
}

// MQTTSettings configures publication of detection events
type MQTTSettings struct {
	Enabled  bool
	Broker   string // broker URL, e.g. tcp://localhost:1883
	Topic    string
	Username string
	Password Secret
	Retain   bool
}

// NotifySettings configures operator alerting via shoutrrr service URLs
type NotifySettings struct {
	Enabled        bool
	URLs           []string // shoutrrr service URLs
	MinInterval    int      // minutes between alerts sharing one key
	OracleOutageAt int      // consecutive oracle failures before alerting
}

// SentrySettings configures optional error telemetry
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// TelemetrySettings configures the Prometheus metrics endpoint
type TelemetrySettings struct {
	Enabled bool   // true to expose Prometheus metrics
	Listen  string // IP address and port to listen on, e.g. "0.0.0.0:8090"
}

// Settings contains all configuration options for truthscan
type Settings struct {
	Debug bool // true to enable debug mode

	Version   string `yaml:"-"` // release version, populated at build
	BuildDate string `yaml:"-"` // build date, populated at build

	Main       MainSettings
	WebServer  WebServerSettings
	Security   SecuritySettings
	Twitter    TwitterSettings
	Oracle     OracleSettings
	DirectAPI  DirectAPISettings
	PageID     PageIDSettings
	ImageFetch ImageFetchSettings
	Worker     WorkerSettings
	Output     OutputSettings
	MQTT       MQTTSettings
	Notify     NotifySettings
	Sentry     SentrySettings
	Telemetry  TelemetrySettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into the global settings instance and returns it.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	// Initialize viper and read config
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	// Unmarshal the config into settings
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	// Validate settings
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with defaults, config paths and env overrides.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Environment overrides, e.g. TRUTHSCAN_ORACLE_APIKEY
	viper.SetEnvPrefix("truthscan")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	// Read configuration file
	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if stderrors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default configuration to the first
// config path and loads it.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	// Create directories for config file
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	// Write default config file
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// PageURL builds the externally visible URL for a page identifier from the
// configured public base URL.
func (s *Settings) PageURL(pageID string) string {
	base := strings.TrimRight(s.WebServer.PublicURL, "/")
	if base == "" {
		base = "http://localhost:" + s.WebServer.Port
	}
	return base + "/d/" + pageID
}

// DatabaseActive reports whether at least one database output is enabled.
func (s *Settings) DatabaseActive() bool {
	return s.Output.SQLite.Enabled || s.Output.MySQL.Enabled
}

// GenerateRandomSecret generates a URL-safe random secret.
func GenerateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		// Log the error and return a safe fallback or empty string
		log.Printf("Failed to generate random secret: %v", err)
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}

// normalizeContentType lowercases and strips parameters from a media type.
func normalizeContentType(ct string) string {
	ct = strings.TrimSpace(strings.ToLower(ct))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// ImageTypeAllowed reports whether the given content type is accepted for
// direct submissions.
func (s *Settings) ImageTypeAllowed(contentType string) bool {
	ct := normalizeContentType(contentType)
	for _, allowed := range s.DirectAPI.AllowedTypes {
		if ct == normalizeContentType(allowed) {
			return true
		}
	}
	return false
}

// ValidateAPIKey reports whether the presented key matches a configured key.
// Comparison is constant time per candidate to avoid leaking prefix matches.
func (s *Settings) ValidateAPIKey(key string) bool {
	if key == "" {
		return false
	}
	for _, configured := range s.DirectAPI.Keys {
		if constantTimeEquals(configured, key) {
			return true
		}
	}
	return false
}

// ConfigError builds an enhanced configuration error for a named setting.
func ConfigError(err error, setting string) error {
	return errors.New(err).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("setting", setting).
		Build()
}
