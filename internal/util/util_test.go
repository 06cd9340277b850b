package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFileName(t *testing.T) {
	day := time.Date(2024, 3, 7, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "ogurec_2024-03-07.log", LogFileName(day))
}

func TestDebugScopes(t *testing.T) {
	t.Cleanup(func() { _ = SetDebugScopes(nil) })

	require.NoError(t, SetDebugScopes([]string{"relay*", "-relay.intercept", " ", "network"}))

	assert.True(t, DebugEnabled("relay"))
	assert.True(t, DebugEnabled("relay.session"))
	assert.False(t, DebugEnabled("relay.intercept"))
	assert.True(t, DebugEnabled("network"))
	assert.False(t, DebugEnabled("api"))

	assert.Error(t, SetDebugScopes([]string{"[oops"}))
}

func TestComponentLoggerLevel(t *testing.T) {
	saved := log.Logger
	t.Cleanup(func() {
		log.Logger = saved
		_ = SetDebugScopes(nil)
	})

	log.Logger = zerolog.Nop().Level(zerolog.InfoLevel)
	require.NoError(t, SetDebugScopes([]string{"relay"}))

	assert.Equal(t, zerolog.DebugLevel, ComponentLogger("relay").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, ComponentLogger("api").GetLevel())

	log.Logger = zerolog.Nop().Level(zerolog.TraceLevel)
	assert.Equal(t, zerolog.TraceLevel, ComponentLogger("relay").GetLevel())
}

func TestPruneLogs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"ogurec_2024-01-01.log",
		"ogurec_2024-01-03.log",
		"ogurec_2024-01-02.log",
		"other.log",
		"ogurec_notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	removed := pruneLogs(dir, 2)
	assert.Equal(t, []string{filepath.Join(dir, "ogurec_2024-01-01.log")}, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"ogurec_2024-01-02.log", "ogurec_2024-01-03.log", "other.log", "ogurec_notes.txt",
	}, names)

	assert.Nil(t, pruneLogs(dir, 5))
}

func TestInitLoggerWritesFile(t *testing.T) {
	saved := log.Logger
	t.Cleanup(func() {
		log.Logger = saved
		_ = SetDebugScopes(nil)
	})

	dir := t.TempDir()
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Directory: dir}))
	assert.Equal(t, zerolog.WarnLevel, log.Logger.GetLevel())

	log.Warn().Msg("hello")

	data, err := os.ReadFile(filepath.Join(dir, LogFileName(time.Now())))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"app":"ogurec"`)
}

func TestInitLoggerBadScope(t *testing.T) {
	saved := log.Logger
	t.Cleanup(func() { log.Logger = saved })

	assert.Error(t, InitLogger(LogConfig{Level: "info", Debug: []string{"[x"}}))
}

func TestGetSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	assert.Equal(t, runtime.GOARCH, info.Architecture)
	assert.Equal(t, runtime.NumCPU(), info.CPUCores)
	assert.NotEmpty(t, info.GoVersion)
}

func TestGetProcessUsage(t *testing.T) {
	usage, err := GetProcessUsage()
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), usage.PID)
	assert.Positive(t, usage.Goroutines)
}
