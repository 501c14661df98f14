// Package mbtiles reads and writes MBTiles 1.3 tile databases (SQLite).
package mbtiles

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrTileNotFound is returned when a tile is absent from the database.
	ErrTileNotFound = errors.New("mbtiles: tile not found")
	// ErrInvalid is returned for files that are not MBTiles databases.
	ErrInvalid = errors.New("mbtiles: not an MBTiles database")
)

// Metadata contains MBTiles metadata fields.
type Metadata struct {
	Name        string // Human-readable tileset identifier
	Format      string // Tile data type (png, jpg, webp, pbf)
	Attribution string
	Description string
	Type        string // "baselayer" or "overlay"
	Version     string
	Bounds      [4]float64 // minLon, minLat, maxLon, maxLat
	Center      [3]float64 // lon, lat, zoom
	MinZoom     int
	MaxZoom     int
}

// ToMap converts Metadata to name/value rows. Zero fields are omitted.
func (m Metadata) ToMap() map[string]string {
	result := make(map[string]string)

	set := func(key, value string) {
		if value != "" {
			result[key] = value
		}
	}
	set("name", m.Name)
	set("format", m.Format)
	set("attribution", m.Attribution)
	set("description", m.Description)
	set("type", m.Type)
	set("version", m.Version)

	if m.MinZoom > 0 || m.MaxZoom > 0 {
		result["minzoom"] = strconv.Itoa(m.MinZoom)
		result["maxzoom"] = strconv.Itoa(m.MaxZoom)
	}
	if m.Bounds != [4]float64{} {
		result["bounds"] = fmt.Sprintf("%.6f,%.6f,%.6f,%.6f",
			m.Bounds[0], m.Bounds[1], m.Bounds[2], m.Bounds[3])
	}
	if m.Center != [3]float64{} {
		result["center"] = fmt.Sprintf("%.6f,%.6f,%d",
			m.Center[0], m.Center[1], int(m.Center[2]))
	}

	return result
}

// MetadataFromMap parses name/value rows; malformed numbers are ignored.
func MetadataFromMap(rows map[string]string) Metadata {
	meta := Metadata{
		Name:        rows["name"],
		Format:      rows["format"],
		Attribution: rows["attribution"],
		Description: rows["description"],
		Type:        rows["type"],
		Version:     rows["version"],
	}

	if i, err := strconv.Atoi(strings.TrimSpace(rows["minzoom"])); err == nil {
		meta.MinZoom = i
	}
	if i, err := strconv.Atoi(strings.TrimSpace(rows["maxzoom"])); err == nil {
		meta.MaxZoom = i
	}
	parseFloats(rows["bounds"], meta.Bounds[:])
	parseFloats(rows["center"], meta.Center[:])

	return meta
}

func parseFloats(s string, dst []float64) {
	parts := strings.Split(s, ",")
	if len(parts) != len(dst) {
		return
	}
	for i, part := range parts {
		if f, err := strconv.ParseFloat(strings.TrimSpace(part), 64); err == nil {
			dst[i] = f
		}
	}
}

// ContentType returns the HTTP content type for a tile format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "pbf", "mvt":
		return "application/x-protobuf"
	default:
		return "application/octet-stream"
	}
}

// DetectFormat sniffs the tile format from its magic bytes.
func DetectFormat(data []byte) string {
	switch {
	case len(data) >= 8 && string(data[1:4]) == "PNG":
		return "png"
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "jpg"
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "webp"
	case isGzip(data):
		return "pbf"
	default:
		return ""
	}
}
