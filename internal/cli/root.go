// Package cli implements the ogurec command tree.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iskrim46/ogurec/internal/config"
	"github.com/iskrim46/ogurec/internal/util"
)

// BuildInfo identifies the binary.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
}

// NewRoot builds the command tree. Without a subcommand it runs the relay.
func NewRoot(info BuildInfo) *cobra.Command {
	g := &globalFlags{}
	relay := relayCmd(g, info)

	root := &cobra.Command{
		Use:   "ogurec",
		Short: "Man-in-the-middle relay for Terraria multiplayer sessions",
		Long: `ogurec sits between a Terraria client and server, forwards every frame
verbatim and rewrites damage the client deals to other players.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          relay.RunE,
	}
	root.Flags().AddFlagSet(relay.Flags())

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", config.DefaultConfigFile, "path to the TOML config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		relay,
		packetsCmd(),
		worldInfoCmd(),
		initCmd(g),
		versionCmd(info),
	)
	return root
}

// loadConfig reads the config file and applies the global overrides.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.SetLogLevel(g.logLevel)
	}
	return cfg, nil
}

func initLogging(cfg *config.Config) error {
	l := cfg.GetLogging()
	return util.InitLogger(util.LogConfig{
		Level:      l.Level,
		Directory:  l.Directory,
		MaxBackups: l.MaxBackups,
		Console:    l.Console,
		Debug:      l.Debug,
	})
}

// validate reports warnings and turns errors into one error.
func validate(cmd *cobra.Command, cfg *config.Config) error {
	result := config.Validate(cfg)
	for _, w := range result.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: [%s] %s\n", w.Field, w.Message)
	}
	if result.IsValid() {
		return nil
	}

	msgs := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
}
