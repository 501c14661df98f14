package datasource

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/MeKo-Christian/go-overpass"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Category groups OSM features by what they depict.
type Category string

const (
	CategoryWater    Category = "water"
	CategoryRiver    Category = "river"
	CategoryPark     Category = "park"
	CategoryRoad     Category = "road"
	CategoryBuilding Category = "building"
	CategoryCivic    Category = "civic"
)

// AllCategories returns every category in rendering order.
func AllCategories() []Category {
	return []Category{CategoryWater, CategoryRiver, CategoryPark, CategoryRoad, CategoryBuilding, CategoryCivic}
}

// ParseCategory maps a name such as "parks" or "Water" to a Category.
func ParseCategory(s string) (Category, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	for _, c := range AllCategories() {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown OSM category %q", s)
}

// UnmarshalOverpassJSON decodes a saved Overpass API JSON response into an overpass.Result.
func UnmarshalOverpassJSON(data []byte) (*overpass.Result, error) {
	var result overpass.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal overpass json: %w", err)
	}
	return &result, nil
}

// ExtractFeatures converts an Overpass result into a FeatureCollection.
// Ways that are members of multipolygon relations are emitted only as part of
// the assembled relation. Elements that match no category are dropped.
func ExtractFeatures(result *overpass.Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if result == nil {
		return fc
	}

	// Embedded member ways only; the Overpass API itself does not embed them
	memberWayIDs := make(map[int64]bool)
	for _, rel := range result.Relations {
		if rel.Tags["type"] != "multipolygon" {
			continue
		}
		for _, member := range rel.Members {
			if member.Type == "way" && member.Way != nil {
				memberWayIDs[member.Way.ID] = true
			}
		}
	}

	// Map iteration order is random; sort for stable output
	wayIDs := make([]int64, 0, len(result.Ways))
	for id := range result.Ways {
		wayIDs = append(wayIDs, id)
	}
	sort.Slice(wayIDs, func(i, j int) bool { return wayIDs[i] < wayIDs[j] })

	for _, id := range wayIDs {
		way := result.Ways[id]
		if memberWayIDs[way.ID] {
			continue
		}
		category, ok := categorize(way.Tags)
		if !ok {
			continue
		}
		if f := convertWay(way, category); f != nil {
			fc.Append(f)
		}
	}

	relIDs := make([]int64, 0, len(result.Relations))
	for id := range result.Relations {
		relIDs = append(relIDs, id)
	}
	sort.Slice(relIDs, func(i, j int) bool { return relIDs[i] < relIDs[j] })

	for _, id := range relIDs {
		rel := result.Relations[id]
		category, ok := categorize(rel.Tags)
		if !ok || (category != CategoryWater && category != CategoryRiver && category != CategoryPark) {
			continue
		}
		// Non-multipolygon relations carry no geometry in "out geom" output
		if rel.Tags["type"] != "multipolygon" {
			continue
		}
		if f := convertMultipolygon(rel, category); f != nil {
			fc.Append(f)
		}
	}

	return fc
}

func wayPoints(way *overpass.Way) orb.LineString {
	points := make(orb.LineString, len(way.Geometry))
	for i, point := range way.Geometry {
		points[i] = orb.Point{point.Lon, point.Lat}
	}
	return points
}

func convertWay(way *overpass.Way, category Category) *geojson.Feature {
	if way == nil || len(way.Geometry) == 0 {
		return nil
	}

	var geometry orb.Geometry
	points := wayPoints(way)

	// Closed ways are areas, except linear waterways and roads
	if len(points) > 3 && points[0] == points[len(points)-1] && category != CategoryRiver && category != CategoryRoad {
		geometry = orb.Polygon{orb.Ring(points)}
	} else {
		geometry = points
	}

	return newFeature(fmt.Sprintf("way/%d", way.ID), category, geometry, way.Tags)
}

// convertMultipolygon assembles a multipolygon relation from its member ways.
// Inner rings are attached to the outer ring that contains them.
func convertMultipolygon(rel *overpass.Relation, category Category) *geojson.Feature {
	if rel == nil {
		return nil
	}

	var outerRings, innerRings []orb.Ring
	for _, member := range rel.Members {
		if member.Type != "way" || member.Way == nil || len(member.Way.Geometry) == 0 {
			continue
		}

		points := wayPoints(member.Way)
		if points[0] != points[len(points)-1] {
			points = append(points, points[0])
		}
		ring := orb.Ring(points)

		// Role can be empty or "outer"
		if member.Role == "inner" {
			innerRings = append(innerRings, ring)
		} else {
			outerRings = append(outerRings, ring)
		}
	}

	if len(outerRings) == 0 {
		return nil
	}

	polygons := make(orb.MultiPolygon, len(outerRings))
	for i, outer := range outerRings {
		polygons[i] = orb.Polygon{outer}
	}
	for _, inner := range innerRings {
		for i, outer := range outerRings {
			if planar.RingContains(outer, inner[0]) {
				polygons[i] = append(polygons[i], inner)
				break
			}
		}
	}

	var geometry orb.Geometry = polygons
	if len(polygons) == 1 {
		geometry = polygons[0]
	}

	return newFeature(fmt.Sprintf("relation/%d", rel.ID), category, geometry, rel.Tags)
}

func newFeature(id string, category Category, geometry orb.Geometry, tags map[string]string) *geojson.Feature {
	f := geojson.NewFeature(geometry)
	f.ID = id
	for k, v := range tags {
		f.Properties[k] = v
	}
	f.Properties["osm_id"] = id
	f.Properties["category"] = string(category)
	return f
}

func categorize(tags map[string]string) (Category, bool) {
	switch {
	case isWater(tags):
		return CategoryWater, true
	case isRiver(tags):
		return CategoryRiver, true
	case isPark(tags):
		return CategoryPark, true
	case isRoad(tags):
		return CategoryRoad, true
	case isBuilding(tags):
		return CategoryBuilding, true
	case isCivic(tags):
		return CategoryCivic, true
	default:
		return "", false
	}
}

// isWater matches polygonal water bodies only; linear waterways are rivers.
func isWater(tags map[string]string) bool {
	return tags["natural"] == "water" ||
		tags["natural"] == "coastline"
}

func isRiver(tags map[string]string) bool {
	return tags["waterway"] != ""
}

func isPark(tags map[string]string) bool {
	return tags["leisure"] == "park" ||
		tags["leisure"] == "garden" ||
		tags["leisure"] == "playground" ||
		tags["landuse"] == "forest" ||
		tags["landuse"] == "grass" ||
		tags["landuse"] == "meadow"
}

func isRoad(tags map[string]string) bool {
	return tags["highway"] != ""
}

func isBuilding(tags map[string]string) bool {
	return tags["building"] != ""
}

func isCivic(tags map[string]string) bool {
	switch tags["amenity"] {
	case "school", "hospital", "university", "library", "town_hall":
		return true
	default:
		return false
	}
}
