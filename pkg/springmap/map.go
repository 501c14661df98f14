// Package springmap composes interactive web maps: tile basemaps, vector
// layers loaded from GeoJSON, shapefiles or CSV, MBTiles rasters, image
// overlays and UI controls, rendered to a standalone Leaflet page.
package springmap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/springmap/internal/fetch"
	"github.com/MeKo-Tech/springmap/internal/loader"
	"github.com/MeKo-Tech/springmap/internal/tile"
	"github.com/MeKo-Tech/springmap/internal/types"
	"github.com/MeKo-Tech/springmap/internal/widget"
)

type (
	// LatLng is a WGS84 position.
	LatLng = types.LatLng
	// BoundingBox is a WGS84 extent.
	BoundingBox = types.BoundingBox
)

const (
	DefaultMinZoom      = 0
	DefaultMaxZoom      = 19
	DefaultImageMaxSize = 2048
)

// Default center and zoom (central Tennessee).
var (
	DefaultCenter = LatLng{Lat: 35.52, Lon: -86.46}
	DefaultZoom   = 7
)

type config struct {
	title            string
	logger           *slog.Logger
	minZoom, maxZoom int
	options          map[string]any
	fetch            FetchConfig
	httpClient       *http.Client
	overpassEndpoint string
	tileServer       string
	layerControl     bool
	imageMaxSize     int
}

// Option configures a Map.
type Option func(*config)

// WithTitle sets the HTML page title.
func WithTitle(title string) Option { return func(c *config) { c.title = title } }

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) Option { return func(c *config) { c.logger = logger } }

// WithZoomRange limits the zoom levels the map allows.
func WithZoomRange(minZoom, maxZoom int) Option {
	return func(c *config) { c.minZoom, c.maxZoom = minZoom, maxZoom }
}

// WithOptions passes extra options to the Leaflet map constructor.
func WithOptions(options map[string]any) Option {
	return func(c *config) { c.options = options }
}

// Cache stores the bodies of remote layer sources, keyed by URL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// NewMemoryCache returns an in-process Cache holding at most entries bodies
// (a default capacity when entries <= 0).
func NewMemoryCache(entries int) Cache { return fetch.NewMemoryCacheSize(entries) }

// FetchConfig configures how remote layer sources are downloaded. Zero
// fields keep their defaults.
type FetchConfig struct {
	HTTPClient *http.Client
	Cache      Cache
	CacheTTL   time.Duration
	UserAgent  string
	MaxBytes   int64 // response body limit
}

// WithFetch configures downloading of remote layer sources.
func WithFetch(fc FetchConfig) Option { return func(c *config) { c.fetch = fc } }

// WithOverpass overrides the Overpass endpoint and HTTP client used by AddOSM.
func WithOverpass(endpoint string, client *http.Client) Option {
	return func(c *config) { c.overpassEndpoint, c.httpClient = endpoint, client }
}

// WithTileServer enables raster layers, served under baseURL/tiles/.
func WithTileServer(baseURL string) Option { return func(c *config) { c.tileServer = baseURL } }

// WithoutLayerControl skips the default layer control.
func WithoutLayerControl() Option { return func(c *config) { c.layerControl = false } }

// WithImageMaxSize downscales image overlays whose longer side exceeds px.
func WithImageMaxSize(px int) Option { return func(c *config) { c.imageMaxSize = px } }

// Map is an interactive map document. It is safe for concurrent use;
// observers run on the goroutine that made the change, outside the map's lock.
type Map struct {
	mu           sync.RWMutex
	title        string
	center       LatLng
	minZoom      int
	maxZoom      int
	options      map[string]any
	layers       []Layer
	controls     []Control
	basemapLayer string // id of the active basemap layer

	zoom    *widget.Value[int]
	basemap *widget.Value[string]

	loader           *loader.Loader
	httpClient       *http.Client
	overpassEndpoint string
	tileServer       string
	imageMaxSize     int
	logger           *slog.Logger
}

// New creates a map centred on center at zoom. A layer control is attached
// at the top right unless WithoutLayerControl is given.
func New(center LatLng, zoom int, opts ...Option) (*Map, error) {
	cfg := config{
		title:        "springmap",
		minZoom:      DefaultMinZoom,
		maxZoom:      DefaultMaxZoom,
		layerControl: true,
		imageMaxSize: DefaultImageMaxSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := center.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if cfg.minZoom < 0 || cfg.maxZoom > tile.MaxZoom || cfg.minZoom > cfg.maxZoom {
		return nil, fmt.Errorf("%w: zoom range [%d, %d] invalid (0..%d)", ErrConfig, cfg.minZoom, cfg.maxZoom, tile.MaxZoom)
	}
	if zoom < cfg.minZoom || zoom > cfg.maxZoom {
		return nil, fmt.Errorf("%w: zoom %d outside [%d, %d]", ErrConfig, zoom, cfg.minZoom, cfg.maxZoom)
	}
	if cfg.options != nil {
		if _, err := json.Marshal(cfg.options); err != nil {
			return nil, fmt.Errorf("%w: map options are not serialisable: %v", ErrConfig, err)
		}
	}
	if cfg.imageMaxSize < 0 {
		return nil, fmt.Errorf("%w: image max size %d is negative", ErrConfig, cfg.imageMaxSize)
	}
	if cfg.fetch.MaxBytes < 0 {
		return nil, fmt.Errorf("%w: fetch size limit %d is negative", ErrConfig, cfg.fetch.MaxBytes)
	}
	fetcher := fetch.New(fetch.Config{
		HTTPClient: cfg.fetch.HTTPClient,
		Cache:      cfg.fetch.Cache,
		CacheTTL:   cfg.fetch.CacheTTL,
		UserAgent:  cfg.fetch.UserAgent,
		MaxBytes:   cfg.fetch.MaxBytes,
		Logger:     cfg.logger,
	})

	m := &Map{
		title:            cfg.title,
		center:           center,
		minZoom:          cfg.minZoom,
		maxZoom:          cfg.maxZoom,
		options:          cfg.options,
		zoom:             widget.NewValue(zoom),
		basemap:          widget.NewValue(""),
		loader:           loader.New(fetcher, cfg.logger),
		httpClient:       cfg.httpClient,
		overpassEndpoint: cfg.overpassEndpoint,
		tileServer:       cfg.tileServer,
		imageMaxSize:     cfg.imageMaxSize,
		logger:           cfg.logger,
	}

	if cfg.layerControl {
		if _, err := m.AddLayerControl(PositionTopRight); err != nil {
			return nil, err
		}
	}

	m.log().Debug("Map created", "center", center.String(), "zoom", zoom)
	return m, nil
}

// Default creates a map with DefaultCenter and DefaultZoom.
func Default(opts ...Option) (*Map, error) {
	return New(DefaultCenter, DefaultZoom, opts...)
}

func (m *Map) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return slog.Default()
}

func newID() string { return uuid.NewString() }

// Title returns the page title.
func (m *Map) Title() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.title
}

// Center returns the map center.
func (m *Map) Center() LatLng {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.center
}

// SetCenter moves the map.
func (m *Map) SetCenter(c LatLng) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	m.mu.Lock()
	m.center = c
	m.mu.Unlock()
	return nil
}

// Zoom returns the current zoom level.
func (m *Map) Zoom() int { return m.zoom.Get() }

// ZoomRange returns the allowed zoom levels.
func (m *Map) ZoomRange() (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minZoom, m.maxZoom
}

// SetZoom changes the zoom level. Zoom observers fire once if the level changed.
func (m *Map) SetZoom(z int) error {
	minZoom, maxZoom := m.ZoomRange()
	if z < minZoom || z > maxZoom {
		return fmt.Errorf("%w: zoom %d outside [%d, %d]", ErrConfig, z, minZoom, maxZoom)
	}
	m.zoom.Set(z)
	return nil
}

func (m *Map) clampZoom(z int) int {
	minZoom, maxZoom := m.ZoomRange()
	return max(minZoom, min(maxZoom, z))
}

// FitBounds centres the map on b and picks the deepest zoom at which b fits
// a 1024x768 viewport.
func (m *Map) FitBounds(b BoundingBox) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	minZoom, maxZoom := m.ZoomRange()
	z := tile.FitZoom(b.Array(), 4, 3, minZoom, maxZoom)

	if err := m.SetCenter(b.Center()); err != nil {
		return err
	}
	m.zoom.Set(z)
	return nil
}

// ObserveZoom calls fn after every zoom change.
func (m *Map) ObserveZoom(fn func(old, new int)) (cancel func()) {
	return m.zoom.Observe(fn)
}

// Basemap returns the registry id of the active basemap, or "".
func (m *Map) Basemap() string { return m.basemap.Get() }

// ObserveBasemap calls fn after the active basemap changes.
func (m *Map) ObserveBasemap(fn func(old, new string)) (cancel func()) {
	return m.basemap.Observe(fn)
}

// Layers returns the attached layers in drawing order.
func (m *Map) Layers() []Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.layers)
}

// Layer looks a layer up by id.
func (m *Map) Layer(id string) (Layer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.layers {
		if l.ID() == id {
			return l, true
		}
	}
	return nil, false
}

// Attach appends a layer built by one of the Prepare methods.
func (m *Map) Attach(layer Layer) error {
	if layer == nil {
		return fmt.Errorf("%w: nil layer", ErrConfig)
	}

	m.mu.Lock()
	for _, l := range m.layers {
		if l.ID() == layer.ID() {
			m.mu.Unlock()
			return fmt.Errorf("%w: layer %s already attached", ErrConfig, layer.ID())
		}
	}
	m.layers = append(m.layers, layer)

	activated := ""
	if tl, ok := layer.(*TileLayer); ok && tl.source.Basemap && m.basemapLayer == "" {
		m.basemapLayer = tl.id
		activated = tl.basemapID
	}
	m.mu.Unlock()

	if activated != "" {
		m.basemap.Set(activated)
	}
	m.log().Debug("Layer attached", "id", layer.ID(), "name", layer.Name(), "kind", layer.Kind())
	return nil
}

// RemoveLayer detaches a layer.
func (m *Map) RemoveLayer(id string) error {
	m.mu.Lock()
	idx := slices.IndexFunc(m.layers, func(l Layer) bool { return l.ID() == id })
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: layer %s", ErrNotFound, id)
	}
	m.layers = slices.Delete(m.layers, idx, idx+1)

	clearBasemap := m.basemapLayer == id
	if clearBasemap {
		m.basemapLayer = ""
	}
	m.mu.Unlock()

	if clearBasemap {
		m.basemap.Set("")
	}
	return nil
}
