package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/springmap/internal/basemap"
)

var basemapsCmd = &cobra.Command{
	Use:   "basemaps",
	Short: "List the named basemaps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tMAX ZOOM")
		for _, p := range basemap.All() {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", p.ID, p.Name, p.MaxZoom)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(basemapsCmd)
}
