package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	latColumns = map[string]bool{"lat": true, "latitude": true, "y": true}
	lonColumns = map[string]bool{"lon": true, "lng": true, "long": true, "longitude": true, "x": true}
)

// decodeCSV turns rows with latitude/longitude columns into point features.
// The remaining columns become properties; rows with unparsable coordinates
// are skipped.
func decodeCSV(data []byte) (*geojson.FeatureCollection, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	recs, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: csv: %v", ErrFormat, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: csv: empty", ErrFormat)
	}

	header := recs[0]
	idxLat, idxLon := csvColumns(header)
	if idxLat == -1 || idxLon == -1 {
		return nil, fmt.Errorf("%w: csv: latitude/longitude columns not found", ErrFormat)
	}

	fc := geojson.NewFeatureCollection()
	for _, row := range recs[1:] {
		if idxLon >= len(row) || idxLat >= len(row) {
			continue
		}
		lon, err1 := strconv.ParseFloat(strings.TrimSpace(row[idxLon]), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(row[idxLat]), 64)
		if err1 != nil || err2 != nil {
			continue
		}

		f := geojson.NewFeature(orb.Point{lon, lat})
		for i, h := range header {
			if i == idxLat || i == idxLon || i >= len(row) {
				continue
			}
			f.Properties[h] = csvValue(row[i])
		}
		fc.Append(f)
	}

	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("%w: csv: no valid points parsed", ErrFormat)
	}
	return fc, nil
}

func csvColumns(header []string) (int, int) {
	idxLat, idxLon := -1, -1
	for i, h := range header {
		lh := strings.ToLower(strings.TrimSpace(h))
		if latColumns[lh] && idxLat == -1 {
			idxLat = i
		}
		if lonColumns[lh] && idxLon == -1 {
			idxLon = i
		}
	}
	return idxLat, idxLon
}

// looksLikeCSV reports whether the first line names lat/lon columns.
func looksLikeCSV(data []byte) bool {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	header := strings.Split(strings.TrimSpace(string(line)), ",")
	lat, lon := csvColumns(header)
	return lat != -1 && lon != -1
}

func csvValue(s string) any {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
