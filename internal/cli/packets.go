package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/iskrim46/ogurec/internal/protocol"
)

func packetsCmd() *cobra.Command {
	var modules bool

	cmd := &cobra.Command{
		Use:   "packets",
		Short: "List the packets and modules the relay knows",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Protocol %s\n", protocol.SupportedVersion)
			writePacketTable(out)
			if modules {
				fmt.Fprintln(out)
				writeModuleTable(out)
			}
		},
	}

	cmd.Flags().BoolVarP(&modules, "modules", "m", false, "also list module ids")
	return cmd
}

func writePacketTable(w io.Writer) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"ID", "Packet", "Compressed"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, d := range protocol.Descriptors() {
		compressed := ""
		if d.Compressed {
			compressed = "yes"
		}
		tw.Append([]string{strconv.Itoa(int(d.ID)), d.Name, compressed})
	}
	tw.Render()
}

func writeModuleTable(w io.Writer) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"ID", "Module"})
	tw.SetBorder(true)

	for _, id := range protocol.Modules() {
		tw.Append([]string{strconv.Itoa(int(id)), id.String()})
	}
	tw.Render()
}
