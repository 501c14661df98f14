package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/MeKo-Tech/springmap/internal/mbtiles"
	"github.com/MeKo-Tech/springmap/internal/tile"
	"github.com/MeKo-Tech/springmap/pkg/springmap"
)

// MBTilesHandler serves tiles from the MBTiles files behind the map's
// raster layers. Readers are opened on first use and kept until Close.
type MBTilesHandler struct {
	m            *springmap.Map
	logger       *slog.Logger
	cacheControl string

	mu      sync.Mutex
	readers map[string]*mbtiles.Reader // by layer id
}

// NewMBTilesHandler creates a handler for m's raster layers.
func NewMBTilesHandler(m *springmap.Map, cacheControl string, logger *slog.Logger) *MBTilesHandler {
	return &MBTilesHandler{
		m:            m,
		logger:       logger,
		cacheControl: cacheControl,
		readers:      make(map[string]*mbtiles.Reader),
	}
}

// Handler returns the HTTP handler function.
func (h *MBTilesHandler) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serveTile(w, r)
	}
}

func (h *MBTilesHandler) serveTile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	coords, ok := parseTileParams(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	reader, err := h.reader(id)
	if err != nil {
		h.log().Warn("Raster layer unavailable", "layer", id, "error", err)
		http.NotFound(w, r)
		return
	}

	data, err := reader.Tile(r.Context(), coords)
	if errors.Is(err, mbtiles.ErrTileNotFound) {
		// Leaflet shows nothing for an empty response, unlike a broken-image 404
		w.Header().Set("Cache-Control", h.cacheControl)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.log().Error("Failed to read tile", "layer", id, "coords", coords.String(), "error", err)
		http.Error(w, "failed to read tile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", h.cacheControl)
	w.Header().Set("Content-Type", mbtiles.ContentType(mbtiles.DetectFormat(data)))
	if _, err := w.Write(data); err != nil {
		h.log().Error("Failed to write response", "error", err)
	}
}

func (h *MBTilesHandler) reader(id string) (*mbtiles.Reader, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.readers[id]; ok {
		return r, nil
	}

	l, ok := h.m.Layer(id)
	if !ok {
		return nil, springmap.ErrNotFound
	}
	rl, ok := l.(*springmap.RasterLayer)
	if !ok {
		return nil, springmap.ErrNotFound
	}

	r, err := mbtiles.OpenReader(rl.Path())
	if err != nil {
		return nil, err
	}
	h.readers[id] = r
	h.log().Debug("Opened tileset", "layer", id, "path", rl.Path())
	return r, nil
}

// Close closes every opened reader.
func (h *MBTilesHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for id, r := range h.readers {
		errs = append(errs, r.Close())
		delete(h.readers, id)
	}
	return errors.Join(errs...)
}

func (h *MBTilesHandler) log() *slog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

// parseTileParams reads z, x and y from the route. A trailing @2x on y is
// dropped; MBTiles sets have a single tile size.
func parseTileParams(r *http.Request) (tile.Coords, bool) {
	y, _ := tileSuffix(chi.URLParam(r, "y"))
	z, errZ := strconv.ParseUint(chi.URLParam(r, "z"), 10, 8)
	x, errX := strconv.ParseUint(chi.URLParam(r, "x"), 10, 32)
	yy, errY := strconv.ParseUint(y, 10, 32)
	if errZ != nil || errX != nil || errY != nil {
		return tile.Coords{}, false
	}

	c := tile.NewCoords(uint32(z), uint32(x), uint32(yy))
	if !c.Valid() {
		return tile.Coords{}, false
	}
	return c, true
}
