package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/contextpad/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Draft drivers.
const (
	DraftDriverFile  = "file"
	DraftDriverRedis = "redis"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Backend  BackendConfig     `yaml:"backend"`
	Analysis AnalysisConfig    `yaml:"analysis"`
	Draft    DraftConfig       `yaml:"draft"`
	Session  SessionConfig     `yaml:"session"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"sqlite", &c.SQLite},
		{"auth", &c.Auth},
		{"backend", &c.Backend},
		{"analysis", &c.Analysis},
		{"draft", &c.Draft},
		{"session", &c.Session},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// httpURL accepts empty strings and absolute http(s) URLs.
var httpURL = validation.By(func(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
})

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the document backend.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// BackendConfig points the editor at the document backend.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the backend configuration.
func (c *BackendConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, httpURL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// AnalysisConfig points the editor at the analysis service. Empty URLs
// disable link discovery.
type AnalysisConfig struct {
	AnalyzeURL    string        `yaml:"analyze_url"`
	RelevantURL   string        `yaml:"relevant_url"`
	VerifyURL     string        `yaml:"verify_url"`
	UseShortening bool          `yaml:"use_shortening"`
	Rate          float64       `yaml:"rate"`
	Burst         int           `yaml:"burst"`
	Timeout       time.Duration `yaml:"timeout"`
	// RelevantQuota caps /relevant calls served by the backend; 0 means
	// unlimited.
	RelevantQuota int `yaml:"relevant_quota"`
}

// Enabled reports whether the analyze and relevant endpoints are set.
func (c *AnalysisConfig) Enabled() bool {
	return c.AnalyzeURL != "" && c.RelevantURL != ""
}

// Validate validates the analysis configuration.
func (c *AnalysisConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AnalyzeURL, httpURL),
		validation.Field(&c.RelevantURL, httpURL),
		validation.Field(&c.VerifyURL, httpURL),
		validation.Field(&c.Rate, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
		validation.Field(&c.RelevantQuota, validation.Min(0)),
	)
}

// DraftConfig selects the local draft store.
type DraftConfig struct {
	Driver    string `yaml:"driver"`
	Dir       string `yaml:"dir"`
	RedisURL  string `yaml:"redis_url"`
	KeyPrefix string `yaml:"key_prefix"`
	MaxBytes  int64  `yaml:"max_bytes"`
}

// Validate validates the draft configuration.
func (c *DraftConfig) Validate() error {
	c.Driver = strings.ToLower(c.Driver)
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(DraftDriverFile, DraftDriverRedis)),
		validation.Field(&c.Dir, validation.When(c.Driver == DraftDriverFile, validation.Required)),
		validation.Field(&c.RedisURL, validation.When(c.Driver == DraftDriverRedis, validation.Required)),
		validation.Field(&c.MaxBytes, validation.Min(int64(0))),
	)
}

// SessionConfig tunes the editor session.
type SessionConfig struct {
	Level        models.AccessLevel `yaml:"level"`
	Debounce     time.Duration      `yaml:"debounce"`
	FreeDocLimit int                `yaml:"free_doc_limit"`
	RetryInitial time.Duration      `yaml:"retry_initial"`
	RetryMax     time.Duration      `yaml:"retry_max"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.Min(models.LevelAnonymous), validation.Max(models.LevelPaid)),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.FreeDocLimit, validation.Min(0)),
		validation.Field(&c.RetryInitial, validation.Min(time.Duration(0))),
		validation.Field(&c.RetryMax, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./contextpad.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
		},
		Analysis: AnalysisConfig{
			UseShortening: true,
			Rate:          2,
			Burst:         4,
			Timeout:       10 * time.Second,
		},
		Draft: DraftConfig{
			Driver:    DraftDriverFile,
			Dir:       "./draft",
			KeyPrefix: "contextpad:",
		},
		Session: SessionConfig{
			Level:        models.LevelAnonymous,
			Debounce:     time.Second,
			FreeDocLimit: 10,
			RetryInitial: 2 * time.Second,
			RetryMax:     time.Minute,
		},
	}
}
