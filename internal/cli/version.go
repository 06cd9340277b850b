package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/iskrim46/ogurec/internal/protocol"
)

func versionCmd(info BuildInfo) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, info.Version)
				return
			}

			fmt.Fprintf(out, "  Version:    %s\n", info.Version)
			fmt.Fprintf(out, "  Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "  Built:      %s\n", info.Date)
			fmt.Fprintf(out, "  Protocol:   %s\n", protocol.SupportedVersion)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")
	return cmd
}
