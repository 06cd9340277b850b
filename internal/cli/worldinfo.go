package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iskrim46/ogurec/internal/worldfile"
)

func worldInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "world-info <file.wld>",
		Short: "Print the header of a world save file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := worldfile.Open(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:     %s\n", args[0])
			fmt.Fprintf(out, "Type:     %s\n", h.Meta.Type)
			fmt.Fprintf(out, "Version:  %d\n", h.Version)
			fmt.Fprintf(out, "Revision: %d\n", h.Meta.Revision)
			fmt.Fprintf(out, "Favorite: %t\n", h.Meta.Favorite())
			return nil
		},
	}
}
