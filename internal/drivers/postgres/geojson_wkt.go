package postgres

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// geoJSONToEWKT converts a GeoJSON geometry document into the EWKT literal
// PostgreSQL's geometry_in() type input function accepts directly in a COPY
// text stream. COPY binds raw column values rather than SQL expressions, so
// an inline ST_GeomFromGeoJSON(...) call (the natural inverse of the
// ST_AsGeoJSON export wrapping in columnExportExpr) cannot be applied per
// bound value the way it could in a plain parameterized INSERT; converting
// to EWKT ourselves lets geometry columns still go through COPY like every
// other column (spec.md §4.9).
func geoJSONToEWKT(raw []byte, srid int32) (string, error) {
	var g geoJSONGeometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return "", fmt.Errorf("parsing geojson geometry: %w", err)
	}
	wkt, err := g.wkt()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SRID=%d;%s", srid, wkt), nil
}

type geoJSONGeometry struct {
	Type        string            `json:"type"`
	Coordinates json.RawMessage   `json:"coordinates,omitempty"`
	Geometries  []geoJSONGeometry `json:"geometries,omitempty"`
}

func (g geoJSONGeometry) wkt() (string, error) {
	switch g.Type {
	case "Point":
		var c []float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil {
			return "", fmt.Errorf("parsing Point coordinates: %w", err)
		}
		return "POINT(" + coordText(c) + ")", nil

	case "LineString":
		var c [][]float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil {
			return "", fmt.Errorf("parsing LineString coordinates: %w", err)
		}
		return "LINESTRING" + coordListBody(c), nil

	case "Polygon":
		var c [][][]float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil {
			return "", fmt.Errorf("parsing Polygon coordinates: %w", err)
		}
		return "POLYGON" + polygonBody(c), nil

	case "MultiPoint":
		var c [][]float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil {
			return "", fmt.Errorf("parsing MultiPoint coordinates: %w", err)
		}
		return "MULTIPOINT" + coordListBody(c), nil

	case "MultiLineString":
		var c [][][]float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil {
			return "", fmt.Errorf("parsing MultiLineString coordinates: %w", err)
		}
		return "MULTILINESTRING" + polygonBody(c), nil

	case "MultiPolygon":
		var c [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil {
			return "", fmt.Errorf("parsing MultiPolygon coordinates: %w", err)
		}
		parts := make([]string, len(c))
		for i, poly := range c {
			parts[i] = polygonBody(poly)
		}
		return "MULTIPOLYGON(" + strings.Join(parts, ",") + ")", nil

	case "GeometryCollection":
		parts := make([]string, len(g.Geometries))
		for i, geom := range g.Geometries {
			w, err := geom.wkt()
			if err != nil {
				return "", err
			}
			parts[i] = w
		}
		return "GEOMETRYCOLLECTION(" + strings.Join(parts, ",") + ")", nil

	default:
		return "", fmt.Errorf("unsupported geojson geometry type %q", g.Type)
	}
}

func coordText(c []float64) string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// coordListBody renders a flat list of coordinate tuples, e.g. a
// LineString's or MultiPoint's "coordinates" array.
func coordListBody(coords [][]float64) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = coordText(c)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// polygonBody renders a list of linear rings, e.g. a Polygon's or
// MultiLineString's "coordinates" array.
func polygonBody(rings [][][]float64) string {
	parts := make([]string, len(rings))
	for i, ring := range rings {
		parts[i] = coordListBody(ring)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
