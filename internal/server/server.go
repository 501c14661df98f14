// Package server serves a springmap map for preview: the rendered page, its
// vector layers as GeoJSON, MBTiles raster tiles and vector layers
// rasterised on demand.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MeKo-Tech/springmap/internal/fetch"
	"github.com/MeKo-Tech/springmap/pkg/springmap"
)

// Config configures a Server.
type Config struct {
	// CacheControl is sent with every tile response.
	CacheControl string
	// MaxConcurrentRenders limits on-demand rasterisation (default 1).
	MaxConcurrentRenders int
	// RenderTimeout bounds a single on-demand tile (default 30s).
	RenderTimeout time.Duration
	// Cache stores rendered tiles; nil means an in-process cache.
	Cache fetch.Cache
	// CacheTTL is how long rendered tiles stay cached (default 1h).
	CacheTTL time.Duration
	// PNGCompression is one of default, speed, best, none.
	PNGCompression string
}

// Server is the preview HTTP server for one map.
type Server struct {
	m        *springmap.Map
	cfg      Config
	rasters  *MBTilesHandler
	rendered *OnDemandTiles
	logger   *slog.Logger
}

// New creates a Server for m.
func New(m *springmap.Map, cfg Config, logger *slog.Logger) (*Server, error) {
	if m == nil {
		return nil, errors.New("server: nil map")
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}

	rendered, err := NewOnDemandTiles(m, OnDemandTilesConfig{
		MaxConcurrentRenders: cfg.MaxConcurrentRenders,
		RenderTimeout:        cfg.RenderTimeout,
		Cache:                cfg.Cache,
		CacheTTL:             cfg.CacheTTL,
		CacheControl:         cfg.CacheControl,
		PNGCompression:       cfg.PNGCompression,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &Server{
		m:        m,
		cfg:      cfg,
		rasters:  NewMBTilesHandler(m, cfg.CacheControl, logger),
		rendered: rendered,
		logger:   logger,
	}, nil
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handlePage)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/layers", s.handleLayers)
	r.Get("/api/status", s.rendered.StatusHandler().ServeHTTP)
	r.Get("/layers/{id}.geojson", s.handleGeoJSON)

	r.Group(func(r chi.Router) {
		r.Use(withCORS)
		r.Method(http.MethodGet, "/tiles/{id}/{z}/{x}/{y}.{ext}", s.rasters.Handler())
		r.Method(http.MethodOptions, "/tiles/{id}/{z}/{x}/{y}.{ext}", s.rasters.Handler())
		r.Method(http.MethodGet, "/render/{id}/{z}/{x}/{y}.png", s.rendered.Handler())
		r.Method(http.MethodOptions, "/render/{id}/{z}/{x}/{y}.png", s.rendered.Handler())
	})
	return r
}

// Close releases open tilesets and stops background work.
func (s *Server) Close() error {
	s.rendered.Stop()
	return s.rasters.Close()
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	page, err := s.m.RenderHTML()
	if err != nil {
		s.log().Error("Failed to render map", "error", err)
		http.Error(w, "failed to render map", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(page))
}

type layerInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	GeoJSON string `json:"geojson,omitempty"`
	Tiles   string `json:"tiles,omitempty"`
}

func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	layers := s.m.Layers()
	out := make([]layerInfo, 0, len(layers))
	for _, l := range layers {
		info := layerInfo{ID: l.ID(), Name: l.Name(), Kind: string(l.Kind())}
		switch l := l.(type) {
		case *springmap.VectorLayer:
			info.GeoJSON = "/layers/" + l.ID() + ".geojson"
			info.Tiles = "/render/" + l.ID() + "/{z}/{x}/{y}.png"
		case *springmap.RasterLayer:
			info.Tiles = l.TileURL("")
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	l, ok := s.m.Layer(id)
	if !ok {
		http.Error(w, fmt.Sprintf("layer %s not found", id), http.StatusNotFound)
		return
	}
	vl, ok := l.(*springmap.VectorLayer)
	if !ok {
		http.Error(w, fmt.Sprintf("layer %s is not a vector layer", id), http.StatusNotFound)
		return
	}

	data, err := vl.GeoJSON()
	if err != nil {
		s.log().Error("Failed to encode layer", "layer", id, "error", err)
		http.Error(w, "failed to encode layer", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(data)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log().Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// tileSuffix splits "12@2x" into "12" and "@2x".
func tileSuffix(y string) (string, string) {
	if strings.HasSuffix(y, "@2x") {
		return strings.TrimSuffix(y, "@2x"), "@2x"
	}
	return y, ""
}
