package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/springmap/internal/mbtiles"
	"github.com/MeKo-Tech/springmap/internal/tile"
	"github.com/MeKo-Tech/springmap/internal/worker"
)

var convertCmd = &cobra.Command{
	Use:   "convert <tiles-dir>",
	Short: "Pack a folder of tiles into an MBTiles file",
	Long: `Convert packs a tile folder into an MBTiles database that can be added to a
map as a raster layer. Both flat (z{z}_x{x}_y{y}.png) and nested
({z}/{x}/{y}.png) layouts are recognised; jpg and webp tiles work too.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringP("output", "o", "", "Output MBTiles file path (required)")
	convertCmd.Flags().String("name", "springmap", "Tileset name")
	convertCmd.Flags().String("description", "", "Tileset description")
	convertCmd.Flags().String("attribution", "", "Attribution text")
	convertCmd.Flags().String("bounds", "", "Bounding box: minLon,minLat,maxLon,maxLat (optional)")
	convertCmd.Flags().IntP("workers", "w", 0, "Number of parallel readers (default: number of CPUs)")
	convertCmd.Flags().Bool("progress", true, "Show progress while converting")

	mustBind(convertCmd, "convert.output", "output")
	mustBind(convertCmd, "convert.name", "name")
	mustBind(convertCmd, "convert.description", "description")
	mustBind(convertCmd, "convert.attribution", "attribution")
	mustBind(convertCmd, "convert.bounds", "bounds")
	mustBind(convertCmd, "convert.workers", "workers")
	mustBind(convertCmd, "convert.progress", "progress")
}

func runConvert(cmd *cobra.Command, args []string) error {
	inputDir := args[0]
	outputFile := viper.GetString("convert.output")
	boundsStr := viper.GetString("convert.bounds")
	workers := viper.GetInt("convert.workers")

	if logger == nil {
		initLogging()
	}

	if outputFile == "" {
		return fmt.Errorf("--output is required")
	}
	if _, err := os.Stat(inputDir); os.IsNotExist(err) {
		return fmt.Errorf("input directory does not exist: %s", inputDir)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	logger.Info("Converting folder tiles to MBTiles", "input_dir", inputDir, "output", outputFile)

	tiles, err := scanTilesDirectory(inputDir)
	if err != nil {
		return fmt.Errorf("failed to scan tiles directory: %w", err)
	}
	if len(tiles) == 0 {
		return fmt.Errorf("no tiles found in %s", inputDir)
	}

	metadata := tilesetMetadata(tiles)
	metadata.Name = viper.GetString("convert.name")
	metadata.Description = viper.GetString("convert.description")
	metadata.Attribution = viper.GetString("convert.attribution")
	if boundsStr != "" {
		bounds, err := parseBBox(boundsStr)
		if err != nil {
			return fmt.Errorf("invalid bounds: %w", err)
		}
		metadata.Bounds = bounds
		metadata.Center = [3]float64{(bounds[0] + bounds[2]) / 2, (bounds[1] + bounds[3]) / 2, float64(metadata.MinZoom)}
	}
	logger.Info("Found tiles", "count", len(tiles), "min_zoom", metadata.MinZoom, "max_zoom", metadata.MaxZoom, "format", metadata.Format)

	writer, err := mbtiles.Create(outputFile, metadata, mbtiles.WriterOptions{})
	if err != nil {
		return fmt.Errorf("failed to create MBTiles writer: %w", err)
	}
	defer writer.Close()

	progress := worker.NewProgress(len(tiles), "tiles", viper.GetBool("convert.progress"))
	pool := worker.New(worker.Config[struct{}]{
		Workers:    workers,
		OnProgress: progress.Callback(),
		Handler: worker.HandlerFunc[struct{}](func(ctx context.Context, task worker.Task) (struct{}, error) {
			ft := tiles[task.Index]
			data, err := os.ReadFile(ft.path)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, writer.WriteTile(ft.coords, data)
		}),
	})

	tasks := make([]worker.Task, len(tiles))
	for i, ft := range tiles {
		tasks[i] = worker.Task{Index: i, Name: ft.path}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	results := pool.Run(ctx, tasks)
	progress.Done()

	failed := worker.Failed(results)
	for _, r := range failed {
		logger.Error("Failed to convert tile", "path", r.Task.Name, "error", r.Err)
	}

	if err := writer.Flush(context.Background()); err != nil {
		return fmt.Errorf("failed to flush tiles: %w", err)
	}
	logger.Info(progress.Summary())

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d tiles failed to convert", len(failed), len(tiles))
	}
	logger.Info("Conversion complete", "output", outputFile, "tiles", writer.Count())
	return nil
}

type folderTile struct {
	coords tile.Coords
	format string
	path   string
}

var (
	flatTilePattern   = regexp.MustCompile(`^z(\d+)_x(\d+)_y(\d+)(?:@2x)?\.(png|jpe?g|webp)$`)
	nestedTilePattern = regexp.MustCompile(`(?:^|/)(\d+)/(\d+)/(\d+)(?:@2x)?\.(png|jpe?g|webp)$`)
)

// scanTilesDirectory finds the tiles under dir. Files that do not look like
// tiles or fall outside the grid are skipped.
func scanTilesDirectory(dir string) ([]folderTile, error) {
	var tiles []folderTile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		m := flatTilePattern.FindStringSubmatch(filepath.Base(path))
		if m == nil {
			m = nestedTilePattern.FindStringSubmatch(rel)
		}
		if m == nil {
			return nil
		}

		c, err := tile.ParseCoords(m[1] + "/" + m[2] + "/" + m[3])
		if err != nil {
			logger.Debug("Skipping file", "path", path, "error", err)
			return nil
		}
		tiles = append(tiles, folderTile{coords: c, format: normalizeFormat(m[4]), path: path})
		return nil
	})
	return tiles, err
}

func normalizeFormat(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}

// tilesetMetadata derives the zoom range, format and extent of tiles.
func tilesetMetadata(tiles []folderTile) mbtiles.Metadata {
	meta := mbtiles.Metadata{Type: "overlay", Version: "1.0", MinZoom: tile.MaxZoom}
	bounds := [4]float64{180, 90, -180, -90}
	formats := map[string]int{}

	for _, ft := range tiles {
		z := int(ft.coords.Z)
		meta.MinZoom = min(meta.MinZoom, z)
		meta.MaxZoom = max(meta.MaxZoom, z)
		formats[ft.format]++

		b := ft.coords.Bounds()
		bounds[0] = min(bounds[0], b[0])
		bounds[1] = min(bounds[1], b[1])
		bounds[2] = max(bounds[2], b[2])
		bounds[3] = max(bounds[3], b[3])
	}

	best := 0
	for f, n := range formats {
		if n > best || (n == best && f < meta.Format) {
			meta.Format, best = f, n
		}
	}
	meta.Bounds = bounds
	meta.Center = [3]float64{(bounds[0] + bounds[2]) / 2, (bounds[1] + bounds[3]) / 2, float64(meta.MinZoom)}
	return meta
}

// parseBBox parses a bounding box string "minLon,minLat,maxLon,maxLat" into [4]float64.
func parseBBox(s string) ([4]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return [4]float64{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}

	var bbox [4]float64
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return [4]float64{}, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		bbox[i] = val
	}

	if bbox[0] >= bbox[2] {
		return [4]float64{}, fmt.Errorf("minLon (%.4f) must be < maxLon (%.4f)", bbox[0], bbox[2])
	}
	if bbox[1] >= bbox[3] {
		return [4]float64{}, fmt.Errorf("minLat (%.4f) must be < maxLat (%.4f)", bbox[1], bbox[3])
	}
	return bbox, nil
}
