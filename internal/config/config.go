package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Protocol    ProtocolConfig    `yaml:"protocol"`
	Features    Features          `yaml:"features"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Collector   CollectorConfig   `yaml:"collector"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	WSURL          string `yaml:"ws_url" env:"BEVIE_WS_URL"`
	DialTimeoutMs  int    `yaml:"dial_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
}

type ProtocolConfig struct {
	// Mode is "json" (typed frames) or "plain" (every frame is reply text).
	Mode            string `yaml:"mode" env:"BEVIE_PROTOCOL_MODE"`
	AssistantSender string `yaml:"assistant_sender"`
	AssistantName   string `yaml:"assistant_name"`
	UserName        string `yaml:"user_name"`
}

// Features switches the optional behaviours that used to live in separate
// copies of the client.
type Features struct {
	ToolResponses bool `yaml:"tool_responses"`
	Sounds        bool `yaml:"sounds"`
	EventCards    bool `yaml:"event_cards"`
}

type DiagnosticsConfig struct {
	URL       string `yaml:"url" env:"BEVIE_DIAGNOSTICS_URL"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Disabled  bool   `yaml:"disabled"`
}

type CollectorConfig struct {
	Listen string `yaml:"listen"`
}

// MetricsConfig exposes the client's own counters. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type StorageConfig struct {
	StateDir string `yaml:"state_dir" env:"BEVIE_STATE_DIR"`
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"BEVIE_LOG_LEVEL"`
	JSON  bool   `yaml:"json"`
	File  string `yaml:"file"`
}

const (
	ModeJSON  = "json"
	ModePlain = "plain"
)

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := base()
	cfg.applyDefaults()
	return cfg
}

func base() *Config {
	return &Config{
		Features: Features{
			ToolResponses: true,
			Sounds:        true,
			EventCards:    true,
		},
	}
}

// LoadConfig reads a YAML config file. A missing file yields the defaults so
// the client starts with zero setup.
func LoadConfig(path string) (*Config, error) {
	cfg := base()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// Environment wins over the file; unset variables leave fields alone.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.WSURL == "" {
		c.Server.WSURL = "ws://localhost:8001/"
	}
	if c.Server.DialTimeoutMs == 0 {
		c.Server.DialTimeoutMs = 10000
	}
	if c.Server.WriteTimeoutMs == 0 {
		c.Server.WriteTimeoutMs = 5000
	}
	if c.Protocol.Mode == "" {
		c.Protocol.Mode = ModeJSON
	}
	if c.Protocol.AssistantSender == "" {
		c.Protocol.AssistantSender = "AssistantAgent"
	}
	if c.Protocol.AssistantName == "" {
		c.Protocol.AssistantName = "Bevie"
	}
	if c.Protocol.UserName == "" {
		c.Protocol.UserName = "You"
	}
	if c.Diagnostics.URL == "" {
		c.Diagnostics.URL = "http://localhost:8000/log"
	}
	if c.Diagnostics.TimeoutMs == 0 {
		c.Diagnostics.TimeoutMs = 3000
	}
	if c.Collector.Listen == "" {
		c.Collector.Listen = "127.0.0.1:8000"
	}
	if c.Storage.StateDir == "" {
		c.Storage.StateDir = defaultStateDir()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.Storage.StateDir, "bevie.log")
	}
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	switch c.Protocol.Mode {
	case ModeJSON, ModePlain:
	default:
		return fmt.Errorf("invalid protocol.mode %q (want %q or %q)", c.Protocol.Mode, ModeJSON, ModePlain)
	}
	if c.Server.DialTimeoutMs < 0 || c.Server.WriteTimeoutMs < 0 || c.Diagnostics.TimeoutMs < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "bevie")
	}
	return filepath.Join(os.TempDir(), "bevie")
}
