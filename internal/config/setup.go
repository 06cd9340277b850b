package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RunSetupWizard prompts for the settings a first run usually changes and
// saves the result. An empty answer keeps the current value.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	w := &wizard{reader: bufio.NewReader(in), out: out}

	fmt.Fprintln(out, "ogurec setup")
	fmt.Fprintln(out)

	cfg.mu.Lock()
	fmt.Fprintln(out, "── Relay ──")
	cfg.Relay.ListenAddr = w.promptString("Listen address for clients", cfg.Relay.ListenAddr)
	cfg.Relay.UpstreamAddr = w.promptString("Upstream game server address", cfg.Relay.UpstreamAddr)
	cfg.Relay.MaxSessions = w.promptInt("Maximum concurrent sessions", cfg.Relay.MaxSessions)
	cfg.Relay.StrictVersion = w.promptBool("Reject clients with another protocol version", cfg.Relay.StrictVersion)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Intercept ──")
	cfg.Intercept.Enabled = w.promptBool("Rewrite damage aimed at other players", cfg.Intercept.Enabled)
	if cfg.Intercept.Enabled {
		cfg.Intercept.DamageMultiplier = w.promptInt("Damage multiplier", cfg.Intercept.DamageMultiplier)
		cfg.Intercept.CustomReason = w.promptString("Death message", cfg.Intercept.CustomReason)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Extras ──")
	cfg.API.Enabled = w.promptBool("Enable admin API", cfg.API.Enabled)
	cfg.Journal.Enabled = w.promptBool("Record intercepts to the journal", cfg.Journal.Enabled)
	cfg.MQTT.Enabled = w.promptBool("Enable MQTT telemetry", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = w.promptString("MQTT broker host", cfg.MQTT.BrokerURL)
		cfg.MQTT.Port = w.promptInt("MQTT broker port", cfg.MQTT.Port)
	}
	cfg.mu.Unlock()

	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Fprintln(out, "\nConfiguration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		return fmt.Errorf("configuration validation failed")
	}
	for _, warn := range result.Warnings {
		fmt.Fprintf(out, "  warning [%s] %s\n", warn.Field, warn.Message)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(out, "\nConfiguration saved to %s\n", cfg.Path())
	return nil
}

type wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

func (w *wizard) readLine() string {
	input, _ := w.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func (w *wizard) promptString(prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(w.out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(w.out, "  %s: ", prompt)
	}

	if input := w.readLine(); input != "" {
		return input
	}
	return defaultVal
}

func (w *wizard) promptInt(prompt string, defaultVal int) int {
	fmt.Fprintf(w.out, "  %s [%d]: ", prompt, defaultVal)

	input := w.readLine()
	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(w.out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func (w *wizard) promptBool(prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(w.out, "  %s [%s]: ", prompt, defaultStr)

	input := strings.ToLower(w.readLine())
	if input == "" {
		return defaultVal
	}
	return input == "yes" || input == "y" || input == "true" || input == "1"
}
