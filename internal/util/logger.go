// Package util provides logging and host helpers used throughout ogurec.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const logFilePrefix = "ogurec_"

// LogConfig holds configuration for the logging system.
type LogConfig struct {
	Level      string
	Directory  string
	MaxBackups int
	Console    bool

	// Debug lists glob patterns of component names logged at debug level
	// regardless of Level. A leading "-" excludes matching components.
	Debug []string
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Directory:  "logs",
		MaxBackups: 5,
		Console:    true,
	}
}

type debugScope struct {
	pattern glob.Glob
	include bool
}

var (
	scopesMu sync.RWMutex
	scopes   []debugScope
)

// InitLogger configures the global logger. An empty Directory disables the
// JSON log file.
func InitLogger(cfg LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	// Levels are set per logger.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	zerolog.TimeFieldFormat = time.RFC3339

	var writers []io.Writer
	var logFilePath string

	if cfg.Directory != "" {
		if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
			return fmt.Errorf("failed to create log directory %s: %w", cfg.Directory, err)
		}

		logFilePath = filepath.Join(cfg.Directory, LogFileName(time.Now()))
		logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
		}
		writers = append(writers, logFile)
	}

	if cfg.Console || len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
			NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
		})
	}

	if err := SetDebugScopes(cfg.Debug); err != nil {
		return err
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("app", "ogurec").
		Logger()

	log.Info().
		Str("level", level.String()).
		Str("log_file", logFilePath).
		Strs("debug", cfg.Debug).
		Msg("logger initialized")

	if cfg.Directory != "" && cfg.MaxBackups > 0 {
		go pruneLogs(cfg.Directory, cfg.MaxBackups)
	}

	return nil
}

// LogFileName is the date-stamped name of the log file for day t.
func LogFileName(t time.Time) string {
	return logFilePrefix + t.Format("2006-01-02") + ".log"
}

// SetDebugScopes replaces the component debug patterns.
func SetDebugScopes(patterns []string) error {
	var parsed []debugScope
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		include := true
		if p[0] == '-' {
			include = false
			p = p[1:]
		}
		g, err := glob.Compile(p)
		if err != nil {
			return fmt.Errorf("bad debug pattern %q: %w", p, err)
		}
		parsed = append(parsed, debugScope{pattern: g, include: include})
	}

	scopesMu.Lock()
	scopes = parsed
	scopesMu.Unlock()
	return nil
}

// DebugEnabled reports whether component matches the debug patterns. Later
// patterns win.
func DebugEnabled(component string) bool {
	scopesMu.RLock()
	defer scopesMu.RUnlock()

	enabled := false
	for _, s := range scopes {
		if s.pattern.Match(component) {
			enabled = s.include
		}
	}
	return enabled
}

// ComponentLogger creates a logger with a component name field.
func ComponentLogger(component string) zerolog.Logger {
	logger := log.With().Str("component", component).Logger()
	if DebugEnabled(component) && logger.GetLevel() > zerolog.DebugLevel {
		logger = logger.Level(zerolog.DebugLevel)
	}
	return logger
}

// pruneLogs removes the oldest log files beyond maxBackups and returns the
// removed paths. File names sort by date.
func pruneLogs(directory string, maxBackups int) []string {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, logFilePrefix) && filepath.Ext(name) == ".log" {
			names = append(names, name)
		}
	}
	if len(names) <= maxBackups {
		return nil
	}
	sort.Strings(names)

	var removed []string
	for _, name := range names[:len(names)-maxBackups] {
		path := filepath.Join(directory, name)
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("failed to remove old log file")
			continue
		}
		log.Debug().Str("file", path).Msg("removed old log file")
		removed = append(removed, path)
	}
	return removed
}
