package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/springmap/internal/mbtiles"
	"github.com/MeKo-Tech/springmap/internal/pipeline"
	"github.com/MeKo-Tech/springmap/internal/tile"
	"github.com/MeKo-Tech/springmap/internal/worker"
	"github.com/MeKo-Tech/springmap/pkg/springmap"
)

var rasterizeCmd = &cobra.Command{
	Use:   "rasterize <map-document>",
	Short: "Rasterise the vector layers of a map document into MBTiles",
	Long: `Rasterize paints every vector layer of a map document into PNG tiles, using
each feature's Leaflet style, and stores them in an MBTiles file. The result can
be added to other maps as a raster layer.`,
	Args: cobra.ExactArgs(1),
	RunE: runRasterize,
}

func init() {
	rootCmd.AddCommand(rasterizeCmd)

	rasterizeCmd.Flags().StringP("output", "o", "", "Output MBTiles file path (required)")
	rasterizeCmd.Flags().String("bbox", "", "Bounding box: minLon,minLat,maxLon,maxLat (default: extent of the vector layers)")
	rasterizeCmd.Flags().Int("zoom-min", 0, "Minimum zoom level")
	rasterizeCmd.Flags().Int("zoom-max", 0, "Maximum zoom level (required)")
	rasterizeCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	rasterizeCmd.Flags().Bool("progress", true, "Show progress bar")
	rasterizeCmd.Flags().Bool("allow-failures", false, "Continue even if some layers or tiles fail")
	rasterizeCmd.Flags().Int("tile-size", 256, "Tile size in pixels")
	rasterizeCmd.Flags().Int("supersample", 2, "Supersampling factor for anti-aliasing (1-4)")
	rasterizeCmd.Flags().Bool("hidpi", false, "Also write a 2x tileset next to the output (<name>@2x.mbtiles)")
	rasterizeCmd.Flags().Bool("keep-empty", false, "Store fully transparent tiles too")
	rasterizeCmd.Flags().String("png-compression", "default", "PNG compression (default, speed, best, none)")

	mustBind(rasterizeCmd, "rasterize.output", "output")
	mustBind(rasterizeCmd, "rasterize.bbox", "bbox")
	mustBind(rasterizeCmd, "rasterize.zoom_min", "zoom-min")
	mustBind(rasterizeCmd, "rasterize.zoom_max", "zoom-max")
	mustBind(rasterizeCmd, "rasterize.workers", "workers")
	mustBind(rasterizeCmd, "rasterize.progress", "progress")
	mustBind(rasterizeCmd, "rasterize.allow_failures", "allow-failures")
	mustBind(rasterizeCmd, "rasterize.tile_size", "tile-size")
	mustBind(rasterizeCmd, "rasterize.supersample", "supersample")
	mustBind(rasterizeCmd, "rasterize.hidpi", "hidpi")
	mustBind(rasterizeCmd, "rasterize.keep_empty", "keep-empty")
	mustBind(rasterizeCmd, "rasterize.png_compression", "png-compression")
}

type rasterizeOptions struct {
	output        string
	zoomMin       int
	zoomMax       int
	workers       int
	progress      bool
	allowFailures bool
	hidpi         bool
	generator     pipeline.GeneratorOptions
}

func runRasterize(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	opts := rasterizeOptions{
		output:        viper.GetString("rasterize.output"),
		zoomMin:       viper.GetInt("rasterize.zoom_min"),
		zoomMax:       viper.GetInt("rasterize.zoom_max"),
		workers:       viper.GetInt("rasterize.workers"),
		progress:      viper.GetBool("rasterize.progress"),
		allowFailures: viper.GetBool("rasterize.allow_failures"),
		hidpi:         viper.GetBool("rasterize.hidpi"),
		generator: pipeline.GeneratorOptions{
			TileSize:       viper.GetInt("rasterize.tile_size"),
			Supersample:    viper.GetInt("rasterize.supersample"),
			PNGCompression: viper.GetString("rasterize.png_compression"),
			KeepEmpty:      viper.GetBool("rasterize.keep_empty"),
		},
	}
	if opts.output == "" {
		return fmt.Errorf("--output is required")
	}
	if opts.zoomMax <= 0 {
		return fmt.Errorf("--zoom-max is required")
	}
	if opts.zoomMin < 0 || opts.zoomMin > opts.zoomMax || opts.zoomMax > tile.MaxZoom {
		return fmt.Errorf("invalid zoom range %d-%d (0..%d)", opts.zoomMin, opts.zoomMax, tile.MaxZoom)
	}
	if opts.workers <= 0 {
		opts.workers = runtime.NumCPU()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, _, err := buildMap(ctx, args[0], opts.allowFailures, mapOptions(nil)...)
	if err != nil {
		return err
	}

	var bbox [4]float64
	if s := viper.GetString("rasterize.bbox"); s != "" {
		if bbox, err = parseBBox(s); err != nil {
			return fmt.Errorf("invalid bbox: %w", err)
		}
	} else {
		var ok bool
		if bbox, ok = vectorExtent(m); !ok {
			return fmt.Errorf("the map has no vector features; pass --bbox")
		}
	}

	return rasterize(ctx, m, bbox, opts)
}

// rasterize writes the base tileset and, with hidpi, the 2x tileset.
func rasterize(ctx context.Context, m *springmap.Map, bbox [4]float64, opts rasterizeOptions) error {
	layers := pipeline.FromMap(m)
	if len(layers) == 0 {
		return fmt.Errorf("the map has no vector layers to rasterise")
	}

	tiles := tile.Cover(bbox, opts.zoomMin, opts.zoomMax)
	logger.Info("Starting rasterisation",
		"bbox", fmt.Sprintf("%.5f,%.5f,%.5f,%.5f", bbox[0], bbox[1], bbox[2], bbox[3]),
		"zoom_range", fmt.Sprintf("%d-%d", opts.zoomMin, opts.zoomMax),
		"layers", len(layers),
		"tiles", len(tiles),
		"workers", opts.workers,
		"output", opts.output,
	)

	metadata := mbtiles.Metadata{
		Name:        m.Title(),
		Format:      "png",
		MinZoom:     opts.zoomMin,
		MaxZoom:     opts.zoomMax,
		Bounds:      bbox,
		Center:      [3]float64{(bbox[0] + bbox[2]) / 2, (bbox[1] + bbox[3]) / 2, float64(opts.zoomMin)},
		Description: "Vector layers rasterised by springmap",
		Type:        "overlay",
		Version:     "1.0",
	}

	if err := rasterPass(ctx, layers, tiles, opts.output, metadata, opts.generator, opts); err != nil {
		return err
	}
	if opts.hidpi {
		hidpi := opts.generator
		if hidpi.TileSize == 0 {
			hidpi.TileSize = 256
		}
		hidpi.TileSize *= 2
		hidpiFile := strings.TrimSuffix(opts.output, ".mbtiles") + "@2x.mbtiles"
		if err := rasterPass(ctx, layers, tiles, hidpiFile, metadata, hidpi, opts); err != nil {
			return err
		}
	}
	return nil
}

func rasterPass(ctx context.Context, layers []pipeline.Layer, tiles []tile.Coords, output string, metadata mbtiles.Metadata, genOpts pipeline.GeneratorOptions, opts rasterizeOptions) error {
	writer, err := mbtiles.Create(output, metadata, mbtiles.WriterOptions{})
	if err != nil {
		return fmt.Errorf("failed to create MBTiles writer: %w", err)
	}
	defer writer.Close()

	gen, err := pipeline.NewGenerator(layers, writer, genOpts, logger)
	if err != nil {
		return fmt.Errorf("failed to init generator: %w", err)
	}

	progress := worker.NewProgress(len(tiles), "tiles", opts.progress)
	pool := worker.New(worker.Config[bool]{
		Workers:    opts.workers,
		Handler:    gen,
		OnProgress: progress.Callback(),
	})

	results := pool.Run(ctx, pipeline.Tasks(tiles))
	progress.Done()

	written := 0
	for _, r := range results {
		if r.Value {
			written++
		}
	}
	failed := worker.Failed(results)
	for _, r := range failed {
		logger.Error("Tile rasterisation failed", "coords", r.Task.Name, "error", r.Err)
	}
	logger.Info(progress.Summary())

	if len(failed) > 0 {
		if !opts.allowFailures {
			return fmt.Errorf("%d tiles failed to rasterise", len(failed))
		}
		logger.Warn("Some tiles failed to rasterise, but continuing due to --allow-failures flag", "failed_count", len(failed))
	}

	logger.Info("Flushing MBTiles database...", "output", output)
	if err := writer.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush MBTiles: %w", err)
	}
	logger.Info("Rasterisation complete", "output", output, "written", written, "empty", len(tiles)-written-len(failed))
	return nil
}

// vectorExtent is the union of the vector layers' extents.
func vectorExtent(m *springmap.Map) ([4]float64, bool) {
	var (
		union orb.Bound
		found bool
	)
	for _, l := range m.Layers() {
		vl, ok := l.(*springmap.VectorLayer)
		if !ok {
			continue
		}
		b, ok := vl.Bound()
		if !ok {
			continue
		}
		if !found {
			union, found = b, true
			continue
		}
		union = union.Union(b)
	}
	if !found {
		return [4]float64{}, false
	}
	return [4]float64{union.Min.Lon(), union.Min.Lat(), union.Max.Lon(), union.Max.Lat()}, true
}
