package springmap

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/springmap/internal/basemap"
	"github.com/MeKo-Tech/springmap/internal/loader"
)

var (
	// ErrFetch is returned when remote data could not be downloaded.
	ErrFetch = loader.ErrFetch
	// ErrFormat is returned for unsupported or corrupt input files.
	ErrFormat = loader.ErrFormat
	// ErrCRS is returned when data cannot be brought into EPSG:4326.
	ErrCRS = loader.ErrCRS
	// ErrUnknownBasemap is returned for identifiers missing from the basemap registry.
	ErrUnknownBasemap = basemap.ErrUnknown
	// ErrRasterUnsupported is returned by AddRaster when the map has no tile server.
	ErrRasterUnsupported = errors.New("springmap: raster layers need a tile server (WithTileServer)")
	// ErrConfig is returned for invalid map configuration.
	ErrConfig = errors.New("springmap: invalid configuration")
	// ErrNotFound is returned when a layer or control id is not on the map.
	ErrNotFound = errors.New("springmap: not found")
)

// LoadError describes a failed layer operation.
type LoadError struct {
	Op     string // e.g. "add_shp"
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("springmap: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("springmap: %s %s: %v", e.Op, e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func loadError(op, source string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{Op: op, Source: source, Err: err}
}
