// Package basemap holds the enumerated registry of named tile providers.
package basemap

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MeKo-Tech/springmap/internal/tile"
)

// ErrUnknown is returned for identifiers that are not in the registry.
var ErrUnknown = errors.New("basemap: unknown basemap identifier")

// Provider describes a tile source resolved from a basemap identifier.
type Provider struct {
	ID          string   // Canonical identifier, e.g. "openstreetmap"
	Name        string   // Display name used by layer controls
	URL         string   // Tile URL template with {z}, {x}, {y} and optional {s}
	Attribution string   // Attribution HTML required by the provider
	Subdomains  []string // Values substituted for {s}
	MaxZoom     int
}

// TileURL expands the template for the given tile, choosing a subdomain deterministically.
func (p Provider) TileURL(c tile.Coords) string {
	sub := ""
	if len(p.Subdomains) > 0 {
		sub = p.Subdomains[int(c.X+c.Y)%len(p.Subdomains)]
	}
	return tile.Expand(p.URL, c, sub)
}

const (
	OpenStreetMap      = "openstreetmap"
	OpenTopoMap        = "opentopomap"
	EsriWorldImagery   = "esri.worldimagery"
	EsriWorldStreetMap = "esri.worldstreetmap"
	EsriWorldTopoMap   = "esri.worldtopomap"
	CartoDBPositron    = "cartodb.positron"
	CartoDBDarkMatter  = "cartodb.darkmatter"
	CartoDBVoyager     = "cartodb.voyager"
)

const (
	osmAttribution   = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`
	cartoAttribution = osmAttribution + ` &copy; <a href="https://carto.com/attributions">CARTO</a>`
	esriAttribution  = `Tiles &copy; Esri`
)

var cartoSubdomains = []string{"a", "b", "c", "d"}

var providers = map[string]Provider{
	OpenStreetMap: {
		ID:          OpenStreetMap,
		Name:        "OpenStreetMap",
		URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: osmAttribution,
		MaxZoom:     19,
	},
	OpenTopoMap: {
		ID:          OpenTopoMap,
		Name:        "OpenTopoMap",
		URL:         "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png",
		Attribution: osmAttribution + `, SRTM | Map style: &copy; <a href="https://opentopomap.org">OpenTopoMap</a> (CC-BY-SA)`,
		Subdomains:  []string{"a", "b", "c"},
		MaxZoom:     17,
	},
	EsriWorldImagery: {
		ID:          EsriWorldImagery,
		Name:        "Esri World Imagery",
		URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
		Attribution: esriAttribution + ` &mdash; Source: Esri, Maxar, Earthstar Geographics, and the GIS User Community`,
		MaxZoom:     19,
	},
	EsriWorldStreetMap: {
		ID:          EsriWorldStreetMap,
		Name:        "Esri World Street Map",
		URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Street_Map/MapServer/tile/{z}/{y}/{x}",
		Attribution: esriAttribution + ` &mdash; Source: Esri, HERE, Garmin, USGS, NGA`,
		MaxZoom:     19,
	},
	EsriWorldTopoMap: {
		ID:          EsriWorldTopoMap,
		Name:        "Esri World Topo Map",
		URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Topo_Map/MapServer/tile/{z}/{y}/{x}",
		Attribution: esriAttribution + ` &mdash; Esri, HERE, Garmin, FAO, NOAA, USGS`,
		MaxZoom:     19,
	},
	CartoDBPositron: {
		ID:          CartoDBPositron,
		Name:        "CartoDB Positron",
		URL:         "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png",
		Attribution: cartoAttribution,
		Subdomains:  cartoSubdomains,
		MaxZoom:     20,
	},
	CartoDBDarkMatter: {
		ID:          CartoDBDarkMatter,
		Name:        "CartoDB Dark Matter",
		URL:         "https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png",
		Attribution: cartoAttribution,
		Subdomains:  cartoSubdomains,
		MaxZoom:     20,
	},
	CartoDBVoyager: {
		ID:          CartoDBVoyager,
		Name:        "CartoDB Voyager",
		URL:         "https://{s}.basemaps.cartocdn.com/rastertiles/voyager/{z}/{x}/{y}{r}.png",
		Attribution: cartoAttribution,
		Subdomains:  cartoSubdomains,
		MaxZoom:     20,
	},
}

// aliases map friendly names (lower-cased) to canonical identifiers.
var aliases = map[string]string{
	"osm":                 OpenStreetMap,
	"streets":             OpenStreetMap,
	"topo":                OpenTopoMap,
	"terrain":             OpenTopoMap,
	"satellite":           EsriWorldImagery,
	"imagery":             EsriWorldImagery,
	"hybrid":              EsriWorldImagery,
	"dark":                CartoDBDarkMatter,
	"light":               CartoDBPositron,
	"cartodb positron":    CartoDBPositron,
	"cartodb dark_matter": CartoDBDarkMatter,
	"cartodbpositron":     CartoDBPositron,
	"cartodbdark_matter":  CartoDBDarkMatter,
	"esri.worldtopo":      EsriWorldTopoMap,
}

// Lookup resolves a basemap identifier (case-insensitive, aliases allowed).
func Lookup(id string) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	p, ok := providers[key]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknown, id, strings.Join(IDs(), ", "))
	}
	return p, nil
}

// IDs returns the canonical identifiers in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(providers))
	for id := range providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns every provider sorted by identifier.
func All() []Provider {
	ids := IDs()
	out := make([]Provider, len(ids))
	for i, id := range ids {
		out[i] = providers[id]
	}
	return out
}
