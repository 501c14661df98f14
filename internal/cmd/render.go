package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/springmap/pkg/springmap"
)

var renderCmd = &cobra.Command{
	Use:   "render <map-document>",
	Short: "Render a map document to a standalone HTML page",
	Long: `Render loads every layer of a map document and writes a single HTML page
that shows the map with Leaflet.

Raster (MBTiles) layers need a tile server: set tile_server in the document or
pass --tile-server with the address of a running "springmap serve".`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringP("output", "o", "", "Output HTML file (default: document name with .html)")
	renderCmd.Flags().String("tile-server", "", "Base URL of the tile server for raster layers")
	renderCmd.Flags().Bool("allow-failures", false, "Write the page even if some layers fail to load")

	mustBind(renderCmd, "render.output", "output")
	mustBind(renderCmd, "render.tile_server", "tile-server")
	mustBind(renderCmd, "render.allow_failures", "allow-failures")
}

func runRender(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	path := args[0]
	output := viper.GetString("render.output")
	if output == "" {
		output = strings.TrimSuffix(path, filepath.Ext(path)) + ".html"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := mapOptions(nil)
	if ts := viper.GetString("render.tile_server"); ts != "" {
		opts = append(opts, springmap.WithTileServer(ts))
	}

	m, _, err := buildMap(ctx, path, viper.GetBool("render.allow_failures"), opts...)
	if err != nil {
		return err
	}
	if err := m.Save(output); err != nil {
		return fmt.Errorf("failed to save map: %w", err)
	}

	logger.Info("Map rendered", "output", output, "layers", len(m.Layers()))
	return nil
}
