package springmap

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/springmap/internal/render"
)

// Document snapshots the map as a render document.
func (m *Map) Document() (render.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc := render.Document{
		Title:    m.title,
		Center:   [2]float64{m.center.Lat, m.center.Lon},
		Zoom:     m.zoom.Get(),
		MinZoom:  m.minZoom,
		MaxZoom:  m.maxZoom,
		Options:  maps.Clone(m.options),
		Layers:   make([]render.Layer, 0, len(m.layers)),
		Controls: make([]render.Control, 0, len(m.controls)),
	}
	for _, l := range m.layers {
		rl, err := l.document(m.tileServer)
		if err != nil {
			return render.Document{}, fmt.Errorf("layer %q: %w", l.Name(), err)
		}
		rl.Active = rl.Basemap && l.ID() == m.basemapLayer
		doc.Layers = append(doc.Layers, rl)
	}
	for _, c := range m.controls {
		doc.Controls = append(doc.Controls, c.document())
	}
	return doc, nil
}

// Render writes the map as a standalone HTML page.
func (m *Map) Render(w io.Writer) error {
	doc, err := m.Document()
	if err != nil {
		return err
	}
	return render.Render(w, doc)
}

// RenderHTML returns the map page.
func (m *Map) RenderHTML() (string, error) {
	var buf bytes.Buffer
	if err := m.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Save writes the page to path. The file is replaced atomically.
func (m *Map) Save(path string) error {
	var buf bytes.Buffer
	if err := m.Render(&buf); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".springmap-*.html")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}

	m.log().Info("Saved map", "path", path, "bytes", buf.Len(), "layers", len(m.Layers()))
	return nil
}
