package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	validateRelay(&cfg.Relay, result)
	validateIntercept(&cfg.Intercept, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)
	validateJournal(&cfg.Journal, result)
	validateLogging(&cfg.Logging, result)

	for _, key := range cfg.undecoded {
		result.AddWarning(key, "unknown key ignored")
	}

	return result
}

func validateRelay(r *RelayConfig, result *ValidationResult) {
	validateAddr(r.ListenAddr, "relay.listen_addr", result)
	validateAddr(r.UpstreamAddr, "relay.upstream_addr", result)

	if r.ListenAddr != "" && r.ListenAddr == r.UpstreamAddr {
		result.AddError("relay.upstream_addr", "upstream address equals the listen address")
	}
	if r.MaxSessions < 1 {
		result.AddError("relay.max_sessions", "must allow at least 1 session")
	}
	if r.MaxSessions > 1 {
		result.AddWarning("relay.max_sessions",
			fmt.Sprintf("%d sessions share one upstream server", r.MaxSessions))
	}
	if r.ReadTimeout < 0 {
		result.AddError("relay.read_timeout", "must not be negative")
	}
	if r.DialTimeout <= 0 {
		result.AddError("relay.dial_timeout", "must be positive")
	}
	if r.AcceptRatePerSec < 1 {
		result.AddWarning("relay.accept_rate_per_sec", "accept rate limit is disabled")
	}
	if r.HealthInterval < 0 {
		result.AddError("relay.health_interval", "must not be negative")
	}
}

func validateIntercept(i *InterceptConfig, result *ValidationResult) {
	if !i.Enabled {
		return
	}
	if i.DamageMultiplier < 1 {
		result.AddError("intercept.damage_multiplier", "must be at least 1")
	}
	if strings.TrimSpace(i.CustomReason) == "" {
		result.AddWarning("intercept.custom_reason", "empty death reason")
	}
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	validateAddr(a.ListenAddr, "api.listen_addr", result)
	if a.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if strings.TrimSpace(m.TopicPrefix) == "" {
		result.AddError("mqtt.topic_prefix", "topic prefix is required when enabled")
	}
}

func validateJournal(j *JournalConfig, result *ValidationResult) {
	if !j.Enabled {
		return
	}
	if strings.TrimSpace(j.Path) == "" {
		result.AddError("journal.path", "journal path is required when enabled")
	}
	if j.Retention < 0 {
		result.AddError("journal.retention", "must not be negative")
	}
	if _, _, err := ParseClock(j.CleanupTime); err != nil {
		result.AddError("journal.cleanup_time", err.Error())
	}
}

// ParseClock parses a HH:MM wall clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	return t.Hour(), t.Minute(), nil
}

func validateLogging(l *LoggingConfig, result *ValidationResult) {
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		result.AddError("logging.level", fmt.Sprintf("unknown level %q", l.Level))
	}
	for _, pattern := range l.Debug {
		if _, err := glob.Compile(strings.TrimPrefix(pattern, "-")); err != nil {
			result.AddError("logging.debug", fmt.Sprintf("bad pattern %q: %v", pattern, err))
		}
	}
}

func validateAddr(addr, field string, result *ValidationResult) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		result.AddError(field, fmt.Sprintf("invalid address %q: %v", addr, err))
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %s (must be 1-65535)", portStr))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}
