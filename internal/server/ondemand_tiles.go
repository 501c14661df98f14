package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MeKo-Tech/springmap/internal/fetch"
	"github.com/MeKo-Tech/springmap/internal/pipeline"
	"github.com/MeKo-Tech/springmap/internal/tile"
	"github.com/MeKo-Tech/springmap/pkg/springmap"
)

// OnDemandTilesConfig configures on-demand rasterisation.
type OnDemandTilesConfig struct {
	Cache                fetch.Cache
	CacheControl         string
	PNGCompression       string
	BaseTileSize         int
	MaxConcurrentRenders int
	RenderTimeout        time.Duration
	CacheTTL             time.Duration
}

// OnDemandTiles rasterises vector layers into PNG tiles as they are
// requested. Rendered tiles are cached; concurrent requests for the same
// tile render it once.
type OnDemandTiles struct {
	m      *springmap.Map
	cfg    OnDemandTilesConfig
	cache  fetch.Cache
	logger *slog.Logger
	sem    chan struct{}
	gens   sync.Map // layer id + size -> *pipeline.Generator

	locksMu sync.Mutex
	locks   map[string]*tileLock

	activeRenders  atomic.Int32
	totalRendered  atomic.Int64
	totalFailed    atomic.Int64
	cacheHits      atomic.Int64
	currentRenders sync.Map // tile key -> start time
	queuedRenders  atomic.Int32
}

// tileLock serialises renders of one tile; it is dropped once nobody holds
// or waits for it.
type tileLock struct {
	mu   sync.Mutex
	refs int
}

// TileStatus is the state of on-demand rendering.
type TileStatus struct {
	ActiveRenders int      `json:"active_renders"`
	TotalRendered int64    `json:"total_rendered"`
	TotalFailed   int64    `json:"total_failed"`
	CacheHits     int64    `json:"cache_hits"`
	CurrentTiles  []string `json:"current_tiles"`
	MaxConcurrent int      `json:"max_concurrent"`
	QueuedRenders int      `json:"queued_renders"`
}

// NewOnDemandTiles creates the renderer for m's vector layers.
func NewOnDemandTiles(m *springmap.Map, cfg OnDemandTilesConfig, logger *slog.Logger) (*OnDemandTiles, error) {
	if cfg.BaseTileSize <= 0 {
		cfg.BaseTileSize = 256
	}
	if cfg.MaxConcurrentRenders <= 0 {
		cfg.MaxConcurrentRenders = 1
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}
	if _, err := pipeline.ParsePNGCompression(cfg.PNGCompression); err != nil {
		return nil, err
	}

	cache := cfg.Cache
	if cache == nil {
		cache = fetch.NewMemoryCache()
	}

	return &OnDemandTiles{
		m:      m,
		cfg:    cfg,
		cache:  cache,
		logger: logger,
		sem:    make(chan struct{}, cfg.MaxConcurrentRenders),
		locks:  make(map[string]*tileLock),
	}, nil
}

// Stop releases cached generators.
func (t *OnDemandTiles) Stop() {
	t.gens.Range(func(key, _ any) bool {
		t.gens.Delete(key)
		return true
	})
}

// Status returns the current render counters.
func (t *OnDemandTiles) Status() TileStatus {
	var current []string
	t.currentRenders.Range(func(key, _ any) bool {
		current = append(current, key.(string))
		return true
	})
	sort.Strings(current)

	return TileStatus{
		ActiveRenders: int(t.activeRenders.Load()),
		TotalRendered: t.totalRendered.Load(),
		TotalFailed:   t.totalFailed.Load(),
		CacheHits:     t.cacheHits.Load(),
		CurrentTiles:  current,
		MaxConcurrent: t.cfg.MaxConcurrentRenders,
		QueuedRenders: int(t.queuedRenders.Load()),
	}
}

// StatusHandler returns an HTTP handler for the status endpoint (JSON).
func (t *OnDemandTiles) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(t.Status()); err != nil {
			t.log().Error("Failed to encode status", "error", err)
		}
	})
}

// Handler serves /render/{id}/{z}/{x}/{y}.png; a y of "12@2x" renders at
// twice the base tile size.
func (t *OnDemandTiles) Handler() http.Handler {
	return http.HandlerFunc(t.serveTile)
}

func (t *OnDemandTiles) serveTile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	coords, ok := parseTileParams(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, suffix := tileSuffix(chi.URLParam(r, "y"))

	tileKey := fmt.Sprintf("render:%s:%s%s", id, coords, suffix)
	w.Header().Set("Cache-Control", t.cfg.CacheControl)

	if data, ok := t.cache.Get(r.Context(), tileKey); ok {
		t.cacheHits.Add(1)
		writeTile(w, data)
		return
	}

	unlock := t.lockTile(tileKey)
	defer unlock()

	if data, ok := t.cache.Get(r.Context(), tileKey); ok {
		t.cacheHits.Add(1)
		writeTile(w, data)
		return
	}

	tileSize := t.cfg.BaseTileSize
	if suffix == "@2x" {
		tileSize *= 2
	}
	gen, err := t.getGenerator(id, tileSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	t.queuedRenders.Add(1)
	select {
	case t.sem <- struct{}{}:
		t.queuedRenders.Add(-1)
		defer func() { <-t.sem }()
	case <-r.Context().Done():
		t.queuedRenders.Add(-1)
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), t.cfg.RenderTimeout)
	defer cancel()

	start := time.Now()
	t.activeRenders.Add(1)
	t.currentRenders.Store(tileKey, start)
	data, err := t.render(ctx, gen, coords)
	t.activeRenders.Add(-1)
	t.currentRenders.Delete(tileKey)

	if err != nil {
		t.totalFailed.Add(1)
		t.log().Error("Failed to render tile", "layer", id, "coords", coords.String(), "suffix", suffix, "error", err)
		http.Error(w, fmt.Sprintf("failed to render tile %s: %v", coords, err), http.StatusInternalServerError)
		return
	}
	t.totalRendered.Add(1)
	t.log().Debug("Tile rendered on demand", "layer", id, "coords", coords.String(), "suffix", suffix, "ms", time.Since(start).Milliseconds())

	if err := t.cache.Set(r.Context(), tileKey, data, t.cfg.CacheTTL); err != nil {
		t.log().Warn("Failed to cache tile", "key", tileKey, "error", err)
	}
	writeTile(w, data)
}

// render returns the encoded tile, or nil when nothing is visible.
func (t *OnDemandTiles) render(ctx context.Context, gen *pipeline.Generator, c tile.Coords) ([]byte, error) {
	img, err := gen.Render(ctx, c)
	if err != nil || img == nil {
		return nil, err
	}
	return gen.Encode(img)
}

func writeTile(w http.ResponseWriter, data []byte) {
	if len(data) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (t *OnDemandTiles) getGenerator(id string, tileSize int) (*pipeline.Generator, error) {
	key := fmt.Sprintf("%s@%d", id, tileSize)
	if v, ok := t.gens.Load(key); ok {
		return v.(*pipeline.Generator), nil
	}

	l, ok := t.m.Layer(id)
	if !ok {
		return nil, fmt.Errorf("layer %s not found", id)
	}
	vl, ok := l.(*springmap.VectorLayer)
	if !ok {
		return nil, fmt.Errorf("layer %s is not a vector layer", id)
	}

	g, err := pipeline.NewGenerator([]pipeline.Layer{pipeline.FromVectorLayer(vl, 1)}, nil, pipeline.GeneratorOptions{
		TileSize:       tileSize,
		PNGCompression: t.cfg.PNGCompression,
	}, t.logger)
	if err != nil {
		return nil, err
	}

	actual, _ := t.gens.LoadOrStore(key, g)
	return actual.(*pipeline.Generator), nil
}

// lockTile locks key and returns the matching unlock.
func (t *OnDemandTiles) lockTile(key string) func() {
	t.locksMu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &tileLock{}
		t.locks[key] = l
	}
	l.refs++
	t.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, key)
		}
		t.locksMu.Unlock()
	}
}

func (t *OnDemandTiles) heldLocks() int {
	t.locksMu.Lock()
	defer t.locksMu.Unlock()
	return len(t.locks)
}

func (t *OnDemandTiles) log() *slog.Logger {
	if t.logger != nil {
		return t.logger
	}
	return slog.Default()
}
