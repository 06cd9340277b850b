// Package config handles configuration loading, validation, and persistence
// for the ogurec relay.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigFile     = "ogurec.toml"
	DefaultListenAddr     = "127.0.0.1:8888"
	DefaultUpstreamAddr   = "127.0.0.1:7777"
	DefaultAPIAddr        = "127.0.0.1:5080"
	DefaultCustomReason   = "killed by server insecurity"
	DefaultTopicPrefix    = "ogurec"
	DefaultJournalPath    = "data/journal.db"
	DefaultDialTimeout    = 5 * time.Second
	DefaultHealthInterval = 30 * time.Second
	DefaultRetention      = 30 * 24 * time.Hour
	DefaultCleanupTime    = "04:00"
	DefaultDamageMultiply = 100
)

// Config is the root configuration structure for ogurec.
type Config struct {
	mu        sync.RWMutex
	path      string
	undecoded []string

	Relay     RelayConfig     `toml:"relay" json:"relay"`
	Intercept InterceptConfig `toml:"intercept" json:"intercept"`
	API       APIConfig       `toml:"api" json:"api"`
	MQTT      MQTTConfig      `toml:"mqtt" json:"mqtt"`
	Journal   JournalConfig   `toml:"journal" json:"journal"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
}

// RelayConfig controls the client listener and the upstream dial.
type RelayConfig struct {
	ListenAddr       string        `toml:"listen_addr" json:"listen_addr"`
	UpstreamAddr     string        `toml:"upstream_addr" json:"upstream_addr"`
	MaxSessions      int           `toml:"max_sessions" json:"max_sessions"`
	ReadTimeout      time.Duration `toml:"read_timeout" json:"read_timeout"`
	DialTimeout      time.Duration `toml:"dial_timeout" json:"dial_timeout"`
	AcceptRatePerSec int           `toml:"accept_rate_per_sec" json:"accept_rate_per_sec"`
	StrictVersion    bool          `toml:"strict_version" json:"strict_version"`
	HealthInterval   time.Duration `toml:"health_interval" json:"health_interval"`
}

// InterceptConfig controls the damage rewrite.
type InterceptConfig struct {
	Enabled          bool   `toml:"enabled" json:"enabled"`
	DamageMultiplier int    `toml:"damage_multiplier" json:"damage_multiplier"`
	CustomReason     string `toml:"custom_reason" json:"custom_reason"`
}

// APIConfig holds admin API settings.
type APIConfig struct {
	Enabled        bool     `toml:"enabled" json:"enabled"`
	ListenAddr     string   `toml:"listen_addr" json:"listen_addr"`
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
	RateLimitRPS   int      `toml:"rate_limit_rps" json:"rate_limit_rps"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `toml:"enabled" json:"enabled"`
	BrokerURL   string `toml:"broker_url" json:"broker_url"`
	Port        int    `toml:"port" json:"port"`
	UseTLS      bool   `toml:"use_tls" json:"use_tls"`
	ClientID    string `toml:"client_id" json:"client_id"`
	TopicPrefix string `toml:"topic_prefix" json:"topic_prefix"`
}

// JournalConfig holds the intercept journal settings. Rows older than
// Retention are deleted daily at CleanupTime (HH:MM, local time); a zero
// Retention keeps everything.
type JournalConfig struct {
	Enabled     bool          `toml:"enabled" json:"enabled"`
	Path        string        `toml:"path" json:"path"`
	Retention   time.Duration `toml:"retention" json:"retention"`
	CleanupTime string        `toml:"cleanup_time" json:"cleanup_time"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string   `toml:"level" json:"level"`
	Directory  string   `toml:"directory" json:"directory"`
	MaxBackups int      `toml:"max_backups" json:"max_backups"`
	Console    bool     `toml:"console" json:"console"`
	Debug      []string `toml:"debug" json:"debug"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			ListenAddr:       DefaultListenAddr,
			UpstreamAddr:     DefaultUpstreamAddr,
			MaxSessions:      1,
			DialTimeout:      DefaultDialTimeout,
			AcceptRatePerSec: 10,
			HealthInterval:   DefaultHealthInterval,
		},
		Intercept: InterceptConfig{
			Enabled:          true,
			DamageMultiplier: DefaultDamageMultiply,
			CustomReason:     DefaultCustomReason,
		},
		API: APIConfig{
			ListenAddr:   DefaultAPIAddr,
			RateLimitRPS: 20,
		},
		MQTT: MQTTConfig{
			Port:        1883,
			ClientID:    "ogurec",
			TopicPrefix: DefaultTopicPrefix,
		},
		Journal: JournalConfig{
			Path:        DefaultJournalPath,
			Retention:   DefaultRetention,
			CleanupTime: DefaultCleanupTime,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 5,
			Console:    true,
		},
	}
}

// Load reads configuration from a TOML file. Keys missing from the file keep
// their defaults; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.path = path

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info().Str("path", path).Msg("config file not found, using defaults")
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	for _, key := range meta.Undecoded() {
		cfg.undecoded = append(cfg.undecoded, key.String())
	}
	sort.Strings(cfg.undecoded)

	log.Info().Str("path", path).Msg("configuration loaded")
	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		return errors.New("config has no path")
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	f, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// SetPath changes where Save writes.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// Path returns the config file path.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// Undecoded lists keys present in the file that no field consumed.
func (c *Config) Undecoded() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.undecoded...)
}

// GetRelay returns a copy of the relay section.
func (c *Config) GetRelay() RelayConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Relay
}

// SetRelay updates the relay section.
func (c *Config) SetRelay(r RelayConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Relay = r
}

// GetIntercept returns a copy of the intercept section.
func (c *Config) GetIntercept() InterceptConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Intercept
}

// GetAPI returns a copy of the API section.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	api := c.API
	api.AllowedOrigins = append([]string(nil), c.API.AllowedOrigins...)
	return api
}

// GetMQTT returns a copy of the MQTT section.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetJournal returns a copy of the journal section.
func (c *Config) GetJournal() JournalConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Journal
}

// GetLogging returns a copy of the logging section.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l := c.Logging
	l.Debug = append([]string(nil), c.Logging.Debug...)
	return l
}

// SetLogLevel overrides the logging level.
func (c *Config) SetLogLevel(level string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logging.Level = level
}
