package springmap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/springmap/internal/worker"
)

// Layer spec types accepted by Prepare.
const (
	SpecGeoJSON   = "geojson"
	SpecShapefile = "shapefile"
	SpecCSV       = "csv"
	SpecVector    = "vector"
	SpecOSM       = "osm"
	SpecRaster    = "raster"
	SpecImage     = "image"
	SpecTiles     = "tiles"
	SpecBasemap   = "basemap"
)

// LayerSpec describes a layer to load. Which fields apply depends on Type.
type LayerSpec struct {
	Type    string
	Name    string
	Source  Source
	Style   Styler
	Options []VectorOption

	// Bounds places image overlays and limits OSM queries.
	Bounds     BoundingBox
	Categories []string
	Opacity    float64

	Tile    TileSource // tiles
	Basemap string     // basemap id
}

// Prepare builds the layer described by spec without attaching it.
func (m *Map) Prepare(ctx context.Context, spec LayerSpec) (Layer, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Type)) {
	case SpecGeoJSON:
		return m.PrepareGeoJSON(ctx, spec.Source, spec.Name, spec.Style, spec.Options...)
	case SpecShapefile, "shp":
		return m.PrepareShapefile(ctx, spec.Source, spec.Name, spec.Style, spec.Options...)
	case SpecCSV:
		return m.PrepareCSV(ctx, spec.Source, spec.Name, spec.Style, spec.Options...)
	case SpecVector, "":
		return m.PrepareVector(ctx, spec.Source, spec.Name, spec.Style, spec.Options...)
	case SpecOSM:
		return m.PrepareOSM(ctx, spec.Bounds, spec.Name, spec.Style, spec.Categories...)
	case SpecRaster:
		return m.PrepareRaster(spec.Source.String(), spec.Name, spec.Opacity)
	case SpecImage:
		return m.PrepareImageOverlay(ctx, spec.Source, spec.Bounds, spec.Name, spec.Opacity)
	case SpecTiles:
		return m.PrepareTileLayer(spec.Tile)
	case SpecBasemap:
		return m.PrepareBasemap(spec.Basemap)
	default:
		return nil, loadError("load_layer", spec.Source.String(), fmt.Errorf("%w: unknown layer type %q", ErrConfig, spec.Type))
	}
}

// LoadLayers prepares specs on up to workers goroutines and attaches the
// successful layers in spec order. Failures are joined into the returned
// error; the layers that loaded stay attached.
func (m *Map) LoadLayers(ctx context.Context, specs []LayerSpec, workers int) ([]Layer, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	tasks := make([]worker.Task, len(specs))
	for i, s := range specs {
		tasks[i] = worker.Task{Index: i, Name: defaultName(s.Name, s.Type)}
	}

	pool := worker.New(worker.Config[Layer]{
		Workers: workers,
		Handler: worker.HandlerFunc[Layer](func(ctx context.Context, task worker.Task) (Layer, error) {
			return m.Prepare(ctx, specs[task.Index])
		}),
	})

	var (
		layers []Layer
		errs   []error
	)
	for _, res := range pool.Run(ctx, tasks) {
		if res.Err != nil {
			m.log().Warn("Layer failed to load", "layer", res.Task.Name, "error", res.Err)
			errs = append(errs, res.Err)
			continue
		}
		if err := m.Attach(res.Value); err != nil {
			errs = append(errs, err)
			continue
		}
		layers = append(layers, res.Value)
	}

	m.log().Info("Loaded layers", "loaded", len(layers), "failed", len(errs))
	return layers, errors.Join(errs...)
}
