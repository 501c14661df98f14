package springmap

import (
	"context"
	"fmt"
	"os"

	"github.com/MeKo-Tech/springmap/internal/imagery"
	"github.com/MeKo-Tech/springmap/internal/mbtiles"
)

func validOpacity(op string, opacity float64) error {
	if opacity < 0 || opacity > 1 {
		return fmt.Errorf("%w: %s opacity %.2f outside [0, 1]", ErrConfig, op, opacity)
	}
	return nil
}

// PrepareRaster opens an MBTiles tileset and returns a layer without
// attaching it. The map must have a tile server (WithTileServer).
func (m *Map) PrepareRaster(path, name string, opacity float64) (*RasterLayer, error) {
	const op = "add_raster"
	if m.tileServer == "" {
		return nil, loadError(op, path, ErrRasterUnsupported)
	}
	if err := validOpacity(op, opacity); err != nil {
		return nil, loadError(op, path, err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, loadError(op, path, fmt.Errorf("%w: %w", ErrFormat, err))
	}

	r, err := mbtiles.OpenReader(path)
	if err != nil {
		return nil, loadError(op, path, fmt.Errorf("%w: %w", ErrFormat, err))
	}
	defer r.Close()

	meta, err := r.Metadata()
	if err != nil {
		return nil, loadError(op, path, fmt.Errorf("%w: %w", ErrFormat, err))
	}
	switch meta.Format {
	case "", "png", "jpg", "jpeg", "webp":
	default:
		return nil, loadError(op, path, fmt.Errorf("%w: tile format %q is not a raster image", ErrFormat, meta.Format))
	}

	if name == "" {
		name = meta.Name
	}
	return &RasterLayer{
		id:       newID(),
		name:     defaultName(name, "Raster"),
		path:     path,
		opacity:  opacity,
		metadata: meta,
	}, nil
}

// AddRaster attaches an MBTiles raster tileset. Without a tile server it
// returns ErrRasterUnsupported and the map is unchanged.
func (m *Map) AddRaster(path, name string, opacity float64) (*RasterLayer, error) {
	layer, err := m.PrepareRaster(path, name, opacity)
	if err != nil {
		return nil, err
	}
	if err := m.Attach(layer); err != nil {
		return nil, err
	}
	return layer, nil
}

// PrepareImageOverlay decodes an image (PNG, JPEG, GIF, BMP, TIFF or WebP),
// downscales it to the map's image size limit and binds it to bounds.
func (m *Map) PrepareImageOverlay(ctx context.Context, src Source, bounds BoundingBox, name string, opacity float64) (*ImageOverlay, error) {
	const op = "add_image"
	if err := bounds.Validate(); err != nil {
		return nil, loadError(op, src.String(), fmt.Errorf("%w: %v", ErrConfig, err))
	}
	if err := validOpacity(op, opacity); err != nil {
		return nil, loadError(op, src.String(), err)
	}

	data, err := m.loader.Bytes(ctx, src)
	if err != nil {
		return nil, loadError(op, src.String(), err)
	}
	img, err := imagery.Decode(data)
	if err != nil {
		return nil, loadError(op, src.String(), fmt.Errorf("%w: %w", ErrFormat, err))
	}

	fitted := imagery.Fit(img.Image, m.imageMaxSize)
	uri, err := imagery.DataURI(fitted)
	if err != nil {
		return nil, loadError(op, src.String(), err)
	}

	b := fitted.Bounds()
	m.log().Info("Loaded image overlay",
		"name", name,
		"source", src.String(),
		"format", img.Format,
		"width", b.Dx(),
		"height", b.Dy(),
	)
	return &ImageOverlay{
		id:      newID(),
		name:    defaultName(name, "Image"),
		dataURI: uri,
		bounds:  bounds,
		opacity: opacity,
		width:   b.Dx(),
		height:  b.Dy(),
	}, nil
}

// AddImageOverlay attaches an image stretched over bounds. An opacity of 0
// leaves the image opaque.
func (m *Map) AddImageOverlay(ctx context.Context, src Source, bounds BoundingBox, name string, opacity float64) (*ImageOverlay, error) {
	layer, err := m.PrepareImageOverlay(ctx, src, bounds, name, opacity)
	if err != nil {
		return nil, err
	}
	if err := m.Attach(layer); err != nil {
		return nil, err
	}
	return layer, nil
}
