package springmap

import "github.com/MeKo-Tech/springmap/internal/basemap"

// Basemaps lists the registry identifiers AddBasemap accepts.
func Basemaps() []string { return basemap.IDs() }

func newBasemapLayer(p basemap.Provider) *TileLayer {
	return &TileLayer{
		id:        newID(),
		basemapID: p.ID,
		source: TileSource{
			Name:        p.Name,
			URL:         p.URL,
			Attribution: p.Attribution,
			MaxZoom:     p.MaxZoom,
			Subdomains:  p.Subdomains,
			Basemap:     true,
		},
	}
}

// PrepareBasemap resolves a registry identifier (case-insensitive, aliases
// such as "satellite" allowed) to a tile layer without attaching it.
func (m *Map) PrepareBasemap(id string) (*TileLayer, error) {
	p, err := basemap.Lookup(id)
	if err != nil {
		return nil, loadError("add_tile_layer", id, err)
	}
	return newBasemapLayer(p), nil
}

// AddBasemap appends a basemap. The first basemap becomes the active one.
func (m *Map) AddBasemap(id string) (*TileLayer, error) {
	layer, err := m.PrepareBasemap(id)
	if err != nil {
		return nil, err
	}
	if err := m.Attach(layer); err != nil {
		return nil, err
	}
	return layer, nil
}

// PrepareTileLayer validates a caller-built tile source.
func (m *Map) PrepareTileLayer(src TileSource) (*TileLayer, error) {
	if err := src.validate(); err != nil {
		return nil, loadError("add_tile_layer", src.URL, err)
	}
	return &TileLayer{id: newID(), source: src}, nil
}

// AddTileLayer appends a caller-built tile source.
func (m *Map) AddTileLayer(src TileSource) (*TileLayer, error) {
	layer, err := m.PrepareTileLayer(src)
	if err != nil {
		return nil, err
	}
	if err := m.Attach(layer); err != nil {
		return nil, err
	}
	return layer, nil
}

// SetBasemap replaces the active basemap in place, or appends one if the map
// has none. Basemap observers fire once if the basemap changed.
func (m *Map) SetBasemap(id string) error {
	p, err := basemap.Lookup(id)
	if err != nil {
		return loadError("set_basemap", id, err)
	}
	if m.Basemap() == p.ID {
		return nil
	}

	layer := newBasemapLayer(p)

	m.mu.Lock()
	replaced := false
	for i, l := range m.layers {
		if l.ID() == m.basemapLayer {
			m.layers[i] = layer
			replaced = true
			break
		}
	}
	if !replaced {
		m.layers = append(m.layers, layer)
	}
	m.basemapLayer = layer.id
	m.mu.Unlock()

	m.basemap.Set(p.ID)
	m.log().Debug("Basemap changed", "basemap", p.ID, "replaced", replaced)
	return nil
}
