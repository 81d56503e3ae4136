package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/agora/internal/urlnorm"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config is the application configuration. It is read from YAML and then
// overridden field by field from environment variables such as
// APP_HTTP_PORT or USER_ORIGIN.
type Config struct {
	App      ApplicationConfig `yaml:"app" envPrefix:"APP_"`
	Replicas ReplicasConfig    `yaml:"replicas" envPrefix:"REPLICAS_"`
	SQLite   SQLiteConfig      `yaml:"sqlite" envPrefix:"SQLITE_"`
	Auth     AuthConfig        `yaml:"auth" envPrefix:"AUTH_"`
	User     UserConfig        `yaml:"user" envPrefix:"USER_"`
	Events   EventsConfig      `yaml:"events" envPrefix:"EVENTS_"`
}

// Validate checks every section, normalizing values where a section does so.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"replicas", &c.Replicas},
		{"sqlite", &c.SQLite},
		{"auth", &c.Auth},
		{"user", &c.User},
		{"events", &c.Events},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds process-level settings.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" env:"LOG_LEVEL"`
	HTTP     HTTPConfig `yaml:"http" envPrefix:"HTTP_"`
}

func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port              int           `yaml:"port" env:"PORT"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// Address returns the listen address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ReadHeaderTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

// ReplicasConfig holds the root directory under which each origin's replica
// lives in its own subdirectory.
type ReplicasConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

func (c *ReplicasConfig) Validate() error {
	return validation.ValidateStruct(c, validation.Field(&c.Path, validation.Required))
}

// SQLiteConfig locates the index database.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c, validation.Field(&c.Path, validation.Required))
}

// AuthConfig controls bearer-token protection of the REST API. With Mode
// "disabled" (the default) every request is accepted; with "token" the
// Token must be presented on each request.
type AuthConfig struct {
	Mode  string `yaml:"mode" env:"MODE"`
	Token string `yaml:"token" env:"TOKEN"`
}

func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.Token,
			validation.When(c.Mode == AuthModeToken, validation.Required.Error("token is empty")),
		),
	)
}

// AuthEnabled reports whether requests must carry the token.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// UserConfig names the local user whose notification feed is derived.
type UserConfig struct {
	Origin string `yaml:"origin" env:"ORIGIN"`
	// Create makes sure a replica exists for Origin at startup.
	Create bool `yaml:"create" env:"CREATE"`
}

// Validate also canonicalizes Origin.
func (c *UserConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Origin, validation.Required),
	); err != nil {
		return err
	}
	c.Origin = urlnorm.CanonicalOrigin(c.Origin)
	return nil
}

// EventsConfig tunes the server-sent event stream.
type EventsConfig struct {
	// FeedThrottle is the minimum gap between two feed.updated events.
	FeedThrottle time.Duration `yaml:"feed_throttle" env:"FEED_THROTTLE"`
	// KeepAlive is how often idle streams get a comment line; zero disables.
	KeepAlive time.Duration `yaml:"keep_alive" env:"KEEP_ALIVE"`
}

func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FeedThrottle, validation.Required),
		validation.Field(&c.KeepAlive, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns the configuration used when no file is given.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:              8080,
				ReadHeaderTimeout: 10 * time.Second,
				ShutdownTimeout:   10 * time.Second,
			},
		},
		Replicas: ReplicasConfig{Path: "./replicas"},
		SQLite:   SQLiteConfig{Path: "./agora.db"},
		Auth:     AuthConfig{Mode: AuthModeDisabled},
		User:     UserConfig{Origin: "dweb://me", Create: true},
		Events: EventsConfig{
			FeedThrottle: 2 * time.Second,
			KeepAlive:    30 * time.Second,
		},
	}
}
