// Package pipeline rasterises vector layers into PNG map tiles.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"strings"

	"github.com/MeKo-Tech/springmap/internal/composite"
	"github.com/MeKo-Tech/springmap/internal/raster"
	"github.com/MeKo-Tech/springmap/internal/tile"
	"github.com/MeKo-Tech/springmap/internal/worker"
	"github.com/disintegration/gift"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// TileWriter stores encoded tiles; *mbtiles.Writer satisfies it.
type TileWriter interface {
	WriteTile(c tile.Coords, data []byte) error
}

// Layer is one vector dataset painted into every tile.
type Layer struct {
	Name     string
	Features *geojson.FeatureCollection
	// Styles holds one style per feature; missing entries use raster.DefaultStyle.
	Styles  []raster.Style
	Opacity float64
}

// GeneratorOptions tunes tile output.
type GeneratorOptions struct {
	TileSize int
	// Supersample renders at N times the tile size and downscales, for smoother edges.
	Supersample int
	// PNGCompression is one of default, speed, best, none.
	PNGCompression string
	// KeepEmpty writes fully transparent tiles instead of skipping them.
	KeepEmpty bool
}

type item struct {
	geometry orb.Geometry
	bound    orb.Bound
	style    raster.Style
}

type preparedLayer struct {
	name    string
	items   []item
	opacity float64
	reach   float64 // widest stroke or radius in tile pixels
}

// Generator renders tiles for a fixed set of layers. It is safe for
// concurrent use and implements worker.Handler[bool].
type Generator struct {
	layers  []preparedLayer
	writer  TileWriter
	encoder png.Encoder
	opts    GeneratorOptions
	logger  *slog.Logger
}

// NewGenerator validates options and indexes feature bounds.
func NewGenerator(layers []Layer, writer TileWriter, opts GeneratorOptions, logger *slog.Logger) (*Generator, error) {
	if opts.TileSize == 0 {
		opts.TileSize = 256
	}
	if opts.TileSize < 0 {
		return nil, fmt.Errorf("tile size must be positive")
	}
	if opts.Supersample <= 0 {
		opts.Supersample = 1
	}
	if opts.Supersample > 4 {
		return nil, fmt.Errorf("supersample factor %d too large (max 4)", opts.Supersample)
	}
	level, err := ParsePNGCompression(opts.PNGCompression)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		writer:  writer,
		encoder: png.Encoder{CompressionLevel: level},
		opts:    opts,
		logger:  logger,
	}

	for _, l := range layers {
		if l.Features == nil {
			continue
		}
		pl := preparedLayer{name: l.Name, opacity: l.Opacity}
		for i, f := range l.Features.Features {
			if f == nil || f.Geometry == nil {
				continue
			}
			st := raster.DefaultStyle
			if i < len(l.Styles) {
				st = l.Styles[i]
			}
			pl.reach = math.Max(pl.reach, math.Max(st.Weight/2, st.Radius+st.Weight/2))
			pl.items = append(pl.items, item{geometry: f.Geometry, bound: f.Geometry.Bound(), style: st})
		}
		g.layers = append(g.layers, pl)
	}

	return g, nil
}

// Bound is the union of all feature bounds. ok is false without features.
func (g *Generator) Bound() (orb.Bound, bool) {
	var b orb.Bound
	ok := false
	for _, l := range g.layers {
		for _, it := range l.items {
			if !ok {
				b, ok = it.bound, true
				continue
			}
			b = b.Union(it.bound)
		}
	}
	return b, ok
}

// Render paints the tile. The result is nil when nothing is visible.
func (g *Generator) Render(ctx context.Context, c tile.Coords) (*image.NRGBA, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid tile %s", c)
	}

	size := g.opts.TileSize * g.opts.Supersample
	r := raster.ForTile(c, size)
	tb := c.Tile().Bound()
	degPerPx := 360.0 / (math.Exp2(float64(c.Z)) * float64(g.opts.TileSize))

	stack := make([]composite.Layer, 0, len(g.layers))
	for _, l := range g.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		search := tb.Pad(l.reach * degPerPx)
		var canvas *image.NRGBA
		for _, it := range l.items {
			if !it.bound.Intersects(search) {
				continue
			}
			if canvas == nil {
				canvas = r.Canvas()
			}
			r.Draw(canvas, it.geometry, it.style.Scale(float64(g.opts.Supersample)))
		}
		if canvas == nil || raster.Empty(canvas) {
			continue
		}
		stack = append(stack, composite.Layer{Image: canvas, Opacity: l.opacity})
	}

	if len(stack) == 0 {
		return nil, nil
	}

	out, err := composite.Stack(nil, stack, size)
	if err != nil {
		return nil, fmt.Errorf("failed to composite layers: %w", err)
	}
	if g.opts.Supersample == 1 {
		return out, nil
	}

	filter := gift.New(gift.Resize(g.opts.TileSize, g.opts.TileSize, gift.LinearResampling))
	small := image.NewNRGBA(filter.Bounds(out.Bounds()))
	filter.Draw(small, out)
	return small, nil
}

// Generate renders, encodes and writes one tile. It reports whether a tile was written.
func (g *Generator) Generate(ctx context.Context, c tile.Coords) (bool, error) {
	img, err := g.Render(ctx, c)
	if err != nil {
		return false, err
	}
	if img == nil {
		if !g.opts.KeepEmpty {
			g.log().Debug("Skipping empty tile", "coords", c.String())
			return false, nil
		}
		img = image.NewNRGBA(image.Rect(0, 0, g.opts.TileSize, g.opts.TileSize))
	}

	data, err := g.Encode(img)
	if err != nil {
		return false, fmt.Errorf("failed to encode tile %s: %w", c, err)
	}
	if g.writer == nil {
		return false, fmt.Errorf("no tile writer configured")
	}
	if err := g.writer.WriteTile(c, data); err != nil {
		return false, fmt.Errorf("failed to write tile %s: %w", c, err)
	}
	return true, nil
}

// Encode compresses img with the configured PNG level.
func (g *Generator) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := g.encoder.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Handle runs Generate for a task built by Tasks.
func (g *Generator) Handle(ctx context.Context, task worker.Task) (bool, error) {
	c, err := tile.ParseCoords(task.Name)
	if err != nil {
		return false, err
	}
	return g.Generate(ctx, c)
}

// Tasks turns tile coordinates into worker tasks.
func Tasks(tiles []tile.Coords) []worker.Task {
	tasks := make([]worker.Task, len(tiles))
	for i, c := range tiles {
		tasks[i] = worker.Task{Index: i, Name: c.String()}
	}
	return tasks
}

// ParsePNGCompression maps a flag value to a png.CompressionLevel.
func ParsePNGCompression(s string) (png.CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return png.DefaultCompression, nil
	case "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	case "none":
		return png.NoCompression, nil
	default:
		return 0, fmt.Errorf("invalid png compression %q (default, speed, best, none)", s)
	}
}

func (g *Generator) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}
