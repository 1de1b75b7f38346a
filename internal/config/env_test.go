package config

import (
	"strings"
	"testing"
	"time"

	"hindsight/client/logging"
)

type envTestConfig struct {
	Port int `env:"HINDSIGHT_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("HINDSIGHT_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.URL != "ws://localhost:8080/ws" || cfg.Game != "lobby" {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session())
	}
	if cfg.DialBackoff != 180*time.Millisecond || cfg.DialAttempts != 12 {
		t.Fatalf("unexpected dial defaults: %s %d", cfg.DialBackoff, cfg.DialAttempts)
	}
	if cfg.Observability().TracingEnabled() {
		t.Fatalf("tracing must be opt-in")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HINDSIGHT_URL", "wss://play.example/ws")
	t.Setenv("HINDSIGHT_USER", "ada")
	t.Setenv("HINDSIGHT_AUTH", "token")
	t.Setenv("HINDSIGHT_LOG_SINKS", "console,json")
	t.Setenv("HINDSIGHT_LOG_LEVEL", "debug")
	t.Setenv("HINDSIGHT_LOG_JSON_PATH", "/tmp/events.jsonl")
	t.Setenv("HINDSIGHT_NOTIFY_PENDING", "true")
	t.Setenv("HINDSIGHT_OTEL_ENDPOINT", "http://localhost:4318")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	session := cfg.Session()
	if session.URL != "wss://play.example/ws" || session.User != "ada" || session.Auth != "token" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if !cfg.NotifyPending {
		t.Fatalf("expected notify pending to be enabled")
	}

	logCfg := cfg.Logging()
	if !logCfg.HasSink(logging.SinkJSON) || !logCfg.HasSink(logging.SinkConsole) {
		t.Fatalf("expected both sinks, got %v", logCfg.EnabledSinks)
	}
	if logCfg.MinimumSeverity != logging.SeverityDebug {
		t.Fatalf("expected debug severity, got %s", logCfg.MinimumSeverity)
	}
	if logCfg.JSON.FilePath != "/tmp/events.jsonl" {
		t.Fatalf("unexpected json path %q", logCfg.JSON.FilePath)
	}
	if !cfg.Observability().TracingEnabled() {
		t.Fatalf("expected tracing to be enabled")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"http url":     func(c *Config) { c.URL = "http://example" },
		"empty url":    func(c *Config) { c.URL = "" },
		"zero mailbox": func(c *Config) { c.MailboxCapacity = 0 },
		"zero pending": func(c *Config) { c.MaxPending = 0 },
		"bad level":    func(c *Config) { c.LogLevel = "loud" },
		"unknown sink": func(c *Config) { c.LogSinks = []string{"syslog"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Config{
				URL:             "ws://localhost/ws",
				MailboxCapacity: 1,
				MaxPending:      1,
				LogLevel:        "info",
				LogSinks:        []string{"console"},
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("baseline config invalid: %v", err)
			}
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
