package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"hindsight/client/internal/controller"
	"hindsight/client/internal/observability"
	"hindsight/client/logging"
)

// Config is the client configuration read from HINDSIGHT_* variables.
type Config struct {
	URL  string `env:"HINDSIGHT_URL" envDefault:"ws://localhost:8080/ws"`
	User string `env:"HINDSIGHT_USER"`
	Auth string `env:"HINDSIGHT_AUTH"`
	Game string `env:"HINDSIGHT_GAME" envDefault:"lobby"`

	MailboxCapacity int  `env:"HINDSIGHT_MAILBOX_CAPACITY" envDefault:"256"`
	MaxPending      int  `env:"HINDSIGHT_MAX_PENDING" envDefault:"64"`
	NotifyPending   bool `env:"HINDSIGHT_NOTIFY_PENDING" envDefault:"false"`

	DialAttempts uint          `env:"HINDSIGHT_DIAL_ATTEMPTS" envDefault:"12"`
	DialBackoff  time.Duration `env:"HINDSIGHT_DIAL_BACKOFF" envDefault:"180ms"`

	LogSinks      []string `env:"HINDSIGHT_LOG_SINKS" envDefault:"console" envSeparator:","`
	LogLevel      string   `env:"HINDSIGHT_LOG_LEVEL" envDefault:"info"`
	LogBufferSize int      `env:"HINDSIGHT_LOG_BUFFER" envDefault:"512"`
	LogJSONPath   string   `env:"HINDSIGHT_LOG_JSON_PATH"`

	ServiceName  string `env:"HINDSIGHT_SERVICE_NAME" envDefault:"hindsight-client"`
	OTelEndpoint string `env:"HINDSIGHT_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"HINDSIGHT_OTEL_ENABLED" envDefault:"true"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the client configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	} else if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		errs = append(errs, fmt.Errorf("url %q must use ws:// or wss://", c.URL))
	}
	if c.MailboxCapacity <= 0 {
		errs = append(errs, fmt.Errorf("mailbox capacity must be positive, got %d", c.MailboxCapacity))
	}
	if c.MaxPending <= 0 {
		errs = append(errs, fmt.Errorf("max pending must be positive, got %d", c.MaxPending))
	}
	if _, err := logging.ParseSeverity(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	for _, sink := range c.LogSinks {
		name := strings.ToLower(strings.TrimSpace(sink))
		if name != logging.SinkConsole && name != logging.SinkJSON {
			errs = append(errs, fmt.Errorf("unknown log sink %q", sink))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Session returns the identifiers passed to the network on connect.
func (c Config) Session() controller.SessionConfig {
	return controller.SessionConfig{URL: c.URL, User: c.User, Auth: c.Auth, Game: c.Game}
}

// Logging builds the router configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = append([]string(nil), c.LogSinks...)
	if c.LogBufferSize > 0 {
		cfg.BufferSize = c.LogBufferSize
	}
	if severity, err := logging.ParseSeverity(c.LogLevel); err == nil {
		cfg.MinimumSeverity = severity
	}
	cfg.JSON.FilePath = c.LogJSONPath
	cfg.Fields = map[string]any{"service": c.ServiceName}
	return cfg
}

func (c Config) Observability() observability.Config {
	return observability.Config{
		ServiceName: c.ServiceName,
		Endpoint:    c.OTelEndpoint,
		Enabled:     c.OTelEnabled,
	}
}
