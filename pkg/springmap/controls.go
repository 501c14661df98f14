package springmap

import (
	"fmt"
	"slices"

	"github.com/MeKo-Tech/springmap/internal/basemap"
	"github.com/MeKo-Tech/springmap/internal/render"
	"github.com/MeKo-Tech/springmap/internal/widget"
)

// Control positions, as in Leaflet.
const (
	PositionTopLeft     = "topleft"
	PositionTopRight    = "topright"
	PositionBottomLeft  = "bottomleft"
	PositionBottomRight = "bottomright"
)

func validPosition(p string) error {
	switch p {
	case PositionTopLeft, PositionTopRight, PositionBottomLeft, PositionBottomRight:
		return nil
	default:
		return fmt.Errorf("%w: unknown control position %q", ErrConfig, p)
	}
}

// ControlKind distinguishes control implementations.
type ControlKind string

const (
	ControlLayers          ControlKind = render.ControlLayers
	ControlZoomSlider      ControlKind = render.ControlZoomSlider
	ControlBasemapSelector ControlKind = render.ControlBasemapSelector
)

// Control is a UI element on the map.
type Control interface {
	ID() string
	Kind() ControlKind
	Position() string
	document() render.Control
}

// LayerControl toggles overlays and switches between basemaps.
type LayerControl struct {
	id       string
	position string
}

func (c *LayerControl) ID() string        { return c.id }
func (c *LayerControl) Kind() ControlKind { return ControlLayers }
func (c *LayerControl) Position() string  { return c.position }

func (c *LayerControl) document() render.Control {
	return render.Control{ID: c.id, Kind: render.ControlLayers, Position: c.position}
}

// AddLayerControl places the layer control. A map has at most one; calling
// this again moves the existing control.
func (m *Map) AddLayerControl(position string) (*LayerControl, error) {
	if err := validPosition(position); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.controls {
		if lc, ok := c.(*LayerControl); ok {
			moved := &LayerControl{id: lc.id, position: position}
			m.controls[i] = moved
			return moved, nil
		}
	}
	lc := &LayerControl{id: newID(), position: position}
	m.controls = append(m.controls, lc)
	return lc, nil
}

// ZoomSlider is a slider bound two-way to the map zoom.
type ZoomSlider struct {
	id       string
	position string
	value    *widget.Value[int]
	unlink   func()
}

func (c *ZoomSlider) ID() string        { return c.id }
func (c *ZoomSlider) Kind() ControlKind { return ControlZoomSlider }
func (c *ZoomSlider) Position() string  { return c.position }

// Value returns the slider position.
func (c *ZoomSlider) Value() int { return c.value.Get() }

// Set moves the slider. Values outside the map's zoom range are clamped and
// the map zoom follows; zoom observers fire once per distinct change.
func (c *ZoomSlider) Set(z int) { c.value.Set(z) }

// Observe calls fn after the slider value changes.
func (c *ZoomSlider) Observe(fn func(old, new int)) (cancel func()) { return c.value.Observe(fn) }

func (c *ZoomSlider) document() render.Control {
	return render.Control{ID: c.id, Kind: render.ControlZoomSlider, Position: c.position}
}

// AddZoomSlider adds a zoom slider linked to the map zoom.
func (m *Map) AddZoomSlider(position string) (*ZoomSlider, error) {
	if err := validPosition(position); err != nil {
		return nil, err
	}

	s := &ZoomSlider{id: newID(), position: position, value: widget.NewValue(m.Zoom())}
	s.unlink = widget.Link(m.zoom, s.value, widget.Identity[int], m.clampZoom)

	m.mu.Lock()
	m.controls = append(m.controls, s)
	m.mu.Unlock()
	return s, nil
}

// BasemapSelector is a dropdown of basemaps; selecting one calls SetBasemap.
type BasemapSelector struct {
	id        string
	position  string
	options   []basemap.Provider
	value     *widget.Value[string]
	m         *Map
	unobserve func()
}

func (c *BasemapSelector) ID() string        { return c.id }
func (c *BasemapSelector) Kind() ControlKind { return ControlBasemapSelector }
func (c *BasemapSelector) Position() string  { return c.position }

// Options returns the selectable basemap identifiers.
func (c *BasemapSelector) Options() []string {
	ids := make([]string, len(c.options))
	for i, p := range c.options {
		ids[i] = p.ID
	}
	return ids
}

// Value returns the selected identifier; "" when the active basemap is not listed.
func (c *BasemapSelector) Value() string { return c.value.Get() }

// Observe calls fn after the selection changes.
func (c *BasemapSelector) Observe(fn func(old, new string)) (cancel func()) {
	return c.value.Observe(fn)
}

// Select switches the map basemap. Unknown identifiers return
// ErrUnknownBasemap, known ones missing from the options ErrConfig.
func (c *BasemapSelector) Select(id string) error {
	p, err := basemap.Lookup(id)
	if err != nil {
		return err
	}
	if !c.lists(p.ID) {
		return fmt.Errorf("%w: basemap %q is not an option of this selector", ErrConfig, p.ID)
	}
	return c.m.SetBasemap(p.ID)
}

func (c *BasemapSelector) lists(id string) bool {
	return slices.ContainsFunc(c.options, func(p basemap.Provider) bool { return p.ID == id })
}

func (c *BasemapSelector) document() render.Control {
	opts := make([]render.Option, len(c.options))
	for i, p := range c.options {
		opts[i] = render.Option{
			ID:          p.ID,
			Name:        p.Name,
			URL:         p.URL,
			Attribution: p.Attribution,
			MaxZoom:     p.MaxZoom,
			Subdomains:  p.Subdomains,
		}
	}
	return render.Control{
		ID:       c.id,
		Kind:     render.ControlBasemapSelector,
		Position: c.position,
		Options:  opts,
		Selected: c.value.Get(),
	}
}

// AddBasemapSelector adds a basemap dropdown. Without ids every registry
// basemap is offered.
func (m *Map) AddBasemapSelector(position string, ids ...string) (*BasemapSelector, error) {
	if err := validPosition(position); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids = basemap.IDs()
	}

	s := &BasemapSelector{id: newID(), position: position, m: m}
	for _, id := range ids {
		p, err := basemap.Lookup(id)
		if err != nil {
			return nil, err
		}
		if !s.lists(p.ID) {
			s.options = append(s.options, p)
		}
	}

	initial := ""
	if current := m.Basemap(); s.lists(current) {
		initial = current
	}
	s.value = widget.NewValue(initial)
	s.unobserve = m.ObserveBasemap(func(_, id string) {
		if s.lists(id) {
			s.value.Set(id)
		} else {
			s.value.Set("")
		}
	})

	m.mu.Lock()
	m.controls = append(m.controls, s)
	m.mu.Unlock()
	return s, nil
}

// Controls returns the attached controls in order.
func (m *Map) Controls() []Control {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.controls)
}

// RemoveControl detaches a control and unbinds it from the map state.
func (m *Map) RemoveControl(id string) error {
	m.mu.Lock()
	idx := slices.IndexFunc(m.controls, func(c Control) bool { return c.ID() == id })
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: control %s", ErrNotFound, id)
	}
	c := m.controls[idx]
	m.controls = slices.Delete(m.controls, idx, idx+1)
	m.mu.Unlock()

	switch c := c.(type) {
	case *ZoomSlider:
		c.unlink()
	case *BasemapSelector:
		c.unobserve()
	}
	return nil
}
