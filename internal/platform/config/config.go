package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces every environment variable read by Load,
// e.g. BOUTIQUE_DATABASE_DSN or BOUTIQUE_SERVER_PORT.
const envPrefix = "boutique"

const minSessionKeyLength = 32

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Session  SessionConfig
	Payments PaymentsConfig
	Delivery DeliveryConfig
	Log      LogConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string        `default:"8080"`
	ReadTimeout     time.Duration `split_words:"true" default:"15s"`
	WriteTimeout    time.Duration `split_words:"true" default:"30s"`
	IdleTimeout     time.Duration `split_words:"true" default:"120s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

// DatabaseConfig stores MySQL connection parameters.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int           `split_words:"true" default:"25"`
	MaxIdleConns    int           `split_words:"true" default:"5"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"30m"`
	ConnectTimeout  time.Duration `split_words:"true" default:"5s"`
}

// SessionConfig controls the authenticated session cookie. BlockKey is
// optional; without it the cookie is signed but not encrypted.
type SessionConfig struct {
	CookieName   string        `split_words:"true" default:"boutique_session"`
	HashKey      string        `split_words:"true"`
	BlockKey     string        `split_words:"true"`
	CookieSecure bool          `split_words:"true" default:"false"`
	Lifetime     time.Duration `default:"168h"`
}

// PaymentsConfig selects the acquirer and the charge currency.
type PaymentsConfig struct {
	DefaultProvider string `split_words:"true" default:"cb"`
	Currency        string `default:"EUR"`
}

// DeliveryConfig names the carrier printed on tracking records.
type DeliveryConfig struct {
	Carrier string `default:"Transporteur"`
}

// LogConfig tunes structured logging output.
type LogConfig struct {
	Level string `default:"info"`
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Load assembles the application configuration from prefixed environment
// variables and applies cross-field validation.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	var missing []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		missing = append(missing, "Database.DSN")
	}
	if len(cfg.Session.HashKey) < minSessionKeyLength {
		missing = append(missing, "Session.HashKey")
	}
	if key := cfg.Session.BlockKey; key != "" {
		switch len(key) {
		case 16, 24, 32:
		default:
			missing = append(missing, "Session.BlockKey")
		}
	}
	if cfg.Session.Lifetime <= 0 {
		missing = append(missing, "Session.Lifetime")
	}
	if strings.TrimSpace(cfg.Payments.DefaultProvider) == "" {
		missing = append(missing, "Payments.DefaultProvider")
	}
	if len(strings.TrimSpace(cfg.Payments.Currency)) != 3 {
		missing = append(missing, "Payments.Currency")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}
