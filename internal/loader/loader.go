// Package loader turns a Source (path, URL or in-memory value) into a feature
// collection in EPSG:4326. It detects the format, decodes it with the
// geojson, shapefile or CSV readers and reprojects through the crs package.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/MeKo-Tech/springmap/internal/crs"
	"github.com/MeKo-Tech/springmap/internal/fetch"
	gj "github.com/MeKo-Tech/springmap/internal/geojson"
	"github.com/MeKo-Tech/springmap/internal/shapefile"
)

var (
	// ErrFetch is returned when remote data could not be retrieved.
	ErrFetch = fetch.ErrFetch
	// ErrFormat is returned for unsupported or corrupt data.
	ErrFormat = errors.New("loader: unsupported or corrupt data")
	// ErrCRS is returned when the data cannot be brought into EPSG:4326.
	ErrCRS = errors.New("loader: coordinate reference system error")
)

// Format is a vector data format.
type Format int

const (
	FormatAuto Format = iota
	FormatGeoJSON
	FormatShapefile
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatGeoJSON:
		return "geojson"
	case FormatShapefile:
		return "shapefile"
	case FormatCSV:
		return "csv"
	default:
		return "auto"
	}
}

// ParseFormat maps names such as "geojson", "shp", "zip" or "csv" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "vector":
		return FormatAuto, nil
	case "geojson", "json":
		return FormatGeoJSON, nil
	case "shapefile", "shp", "zip":
		return FormatShapefile, nil
	case "csv":
		return FormatCSV, nil
	default:
		return FormatAuto, fmt.Errorf("%w: unknown format %q", ErrFormat, s)
	}
}

func formatFromExt(ext string) Format {
	switch ext {
	case ".geojson", ".json":
		return FormatGeoJSON
	case ".shp", ".zip":
		return FormatShapefile
	case ".csv":
		return FormatCSV
	default:
		return FormatAuto
	}
}

// Dataset is a loaded vector dataset in EPSG:4326.
type Dataset struct {
	Features *geojson.FeatureCollection
	Format   Format
	CRS      crs.System // system the data was declared in before reprojection
}

// Loader reads vector data from any Source.
type Loader struct {
	fetcher *fetch.Client
	logger  *slog.Logger
}

// New creates a Loader. A nil fetcher uses fetch.Default().
func New(fetcher *fetch.Client, logger *slog.Logger) *Loader {
	if fetcher == nil {
		fetcher = fetch.Default()
	}
	return &Loader{fetcher: fetcher, logger: logger}
}

func (l *Loader) log() *slog.Logger {
	if l.logger != nil {
		return l.logger
	}
	return slog.Default()
}

// Load reads src as format (FormatAuto detects it) and returns features in
// EPSG:4326. The returned collection never aliases caller-owned values.
func (l *Loader) Load(ctx context.Context, src Source, format Format) (*Dataset, error) {
	if src.IsZero() {
		return nil, fmt.Errorf("%w: empty source", ErrFormat)
	}
	if format == FormatAuto {
		format = formatFromExt(src.Ext())
	}

	var (
		fc  *geojson.FeatureCollection
		sys crs.System
		err error
	)

	if src.kind == kindData {
		if _, raw := rawValue(src.value); !raw {
			fc, sys, err = decodeValue(src.value)
			if err != nil {
				return nil, err
			}
			return l.finish(src, fc, FormatGeoJSON, sys)
		}
	}

	if format == FormatShapefile {
		if p, ok := src.IsPath(); ok {
			ds, err := shapefile.Read(p)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrFormat, err)
			}
			sys, err := crs.FromPRJ(ds.Projection)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrCRS, err)
			}
			return l.finish(src, ds.Features, FormatShapefile, sys)
		}
	}

	data, err := l.Bytes(ctx, src)
	if err != nil {
		return nil, err
	}

	if format == FormatAuto {
		format = sniff(data)
	}

	switch format {
	case FormatGeoJSON:
		fc, err = gj.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		code, err := crs.FromGeoJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCRS, err)
		}
		sys = crs.System{Code: code}
	case FormatShapefile:
		ds, err := l.decodeShapefile(ctx, src, data)
		if err != nil {
			return nil, err
		}
		fc = ds.Features
		sys, err = crs.FromPRJ(ds.Projection)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCRS, err)
		}
	case FormatCSV:
		fc, err = decodeCSV(data)
		if err != nil {
			return nil, err
		}
		sys = crs.System{}
	default:
		return nil, fmt.Errorf("%w: cannot detect format of %s", ErrFormat, src)
	}

	return l.finish(src, fc, format, sys)
}

func (l *Loader) finish(src Source, fc *geojson.FeatureCollection, format Format, sys crs.System) (*Dataset, error) {
	if err := crs.ToWGS84(fc, sys); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCRS, err)
	}
	l.log().Debug("Loaded vector data",
		"source", src.String(),
		"format", format.String(),
		"crs", sys.String(),
		"features", len(fc.Features))
	return &Dataset{Features: fc, Format: format, CRS: sys}, nil
}

// decodeShapefile handles shapefiles that are not local paths: zipped bytes,
// or a remote .shp whose .shx/.dbf/.prj siblings are fetched best-effort.
func (l *Loader) decodeShapefile(ctx context.Context, src Source, data []byte) (*shapefile.Dataset, error) {
	var (
		ds  *shapefile.Dataset
		err error
	)

	switch {
	case shapefile.IsZip(data):
		ds, err = shapefile.ReadZipBytes(data)
	case src.kind == kindURL:
		files := shapefile.Files{SHP: data}
		files.SHX = l.sibling(ctx, src.url, ".shx")
		files.DBF = l.sibling(ctx, src.url, ".dbf")
		files.PRJ = l.sibling(ctx, src.url, ".prj")
		ds, err = shapefile.ReadFiles(files)
	default:
		ds, err = shapefile.ReadFiles(shapefile.Files{SHP: data})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return ds, nil
}

func (l *Loader) sibling(ctx context.Context, raw, ext string) []byte {
	u, err := siblingURL(raw, ext)
	if err != nil {
		return nil
	}
	data, err := l.fetcher.Get(ctx, u)
	if err != nil {
		l.log().Debug("Shapefile sidecar not available", "url", u, "error", err)
		return nil
	}
	return data
}

// Bytes returns the raw content of src. In-memory values must be []byte or string.
func (l *Loader) Bytes(ctx context.Context, src Source) ([]byte, error) {
	switch src.kind {
	case kindPath:
		data, err := os.ReadFile(src.path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		return data, nil
	case kindURL:
		return l.fetcher.Get(ctx, src.url)
	case kindData:
		data, ok := rawValue(src.value)
		if !ok {
			return nil, fmt.Errorf("%w: cannot read bytes from %T", ErrFormat, src.value)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: empty source", ErrFormat)
	}
}

func rawValue(v any) ([]byte, bool) {
	switch val := v.(type) {
	case []byte:
		return bytes.Clone(val), true
	case string:
		return []byte(val), true
	default:
		return nil, false
	}
}

func decodeValue(v any) (*geojson.FeatureCollection, crs.System, error) {
	fc, raw, err := gj.FromValue(v)
	if err != nil {
		return nil, crs.System{}, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	code, err := crs.FromGeoJSON(raw)
	if err != nil {
		return nil, crs.System{}, fmt.Errorf("%w: %w", ErrCRS, err)
	}
	return fc, crs.System{Code: code}, nil
}

// sniff guesses the format from content.
func sniff(data []byte) Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	switch {
	case shapefile.IsZip(data), shapefile.IsShp(data):
		return FormatShapefile
	case len(trimmed) > 0 && trimmed[0] == '{':
		return FormatGeoJSON
	case looksLikeCSV(trimmed):
		return FormatCSV
	default:
		return FormatAuto
	}
}
