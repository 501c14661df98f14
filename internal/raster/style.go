package raster

import (
	"image/color"
	"math"
	"strings"

	"github.com/mazznoer/csscolorparser"
)

// Style is how a feature is painted. Widths are in pixels.
type Style struct {
	Stroke color.NRGBA
	Fill   color.NRGBA
	Weight float64
	Radius float64 // point features
}

// DefaultStyle matches Leaflet's default path options.
var DefaultStyle = Style{
	Stroke: color.NRGBA{R: 0x33, G: 0x88, B: 0xff, A: 255},
	Fill:   color.NRGBA{R: 0x33, G: 0x88, B: 0xff, A: 51},
	Weight: 3,
	Radius: 5,
}

// StyleFromOptions reads Leaflet path options (color, weight, opacity,
// fillColor, fillOpacity, fill, stroke, radius). Unknown keys are ignored and
// missing ones fall back to DefaultStyle.
func StyleFromOptions(opts map[string]any) Style {
	st := DefaultStyle

	strokeColor, ok := ParseColor(stringOpt(opts, "color"))
	if !ok {
		strokeColor = DefaultStyle.Stroke
	}
	fillColor, ok := ParseColor(stringOpt(opts, "fillColor"))
	if !ok {
		fillColor = strokeColor
	}

	opacity := floatOpt(opts, "opacity", 1)
	fillOpacity := floatOpt(opts, "fillOpacity", 0.2)

	st.Stroke = withOpacity(strokeColor, opacity)
	st.Fill = withOpacity(fillColor, fillOpacity)
	st.Weight = floatOpt(opts, "weight", DefaultStyle.Weight)
	st.Radius = floatOpt(opts, "radius", DefaultStyle.Radius)

	if v, ok := opts["stroke"].(bool); ok && !v {
		st.Stroke.A = 0
	}
	if v, ok := opts["fill"].(bool); ok && !v {
		st.Fill.A = 0
	}
	return st
}

// Scale multiplies widths by f, for supersampled rendering.
func (s Style) Scale(f float64) Style {
	s.Weight *= f
	s.Radius *= f
	return s
}

// ParseColor reads CSS colors the way a browser would for Leaflet: named
// colors, hex, rgb(a) and hsl(a).
func ParseColor(s string) (color.NRGBA, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return color.NRGBA{}, false
	}
	c, err := csscolorparser.Parse(s)
	if err != nil {
		return color.NRGBA{}, false
	}
	r, g, b, a := c.RGBA255()
	return color.NRGBA{R: r, G: g, B: b, A: a}, true
}

func withOpacity(c color.NRGBA, opacity float64) color.NRGBA {
	opacity = math.Max(0, math.Min(1, opacity))
	c.A = uint8(math.Round(float64(c.A) * opacity))
	return c
}

func stringOpt(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

func floatOpt(opts map[string]any, key string, fallback float64) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}
