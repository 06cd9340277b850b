package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iskrim46/ogurec/internal/config"
)

func initCmd(g *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively write a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(g.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to edit it)", g.configPath)
			}

			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			return config.RunSetupWizard(cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "edit an existing config file")
	return cmd
}
