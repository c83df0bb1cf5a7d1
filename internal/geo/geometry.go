// Package geo holds the GeoJSON geometry subset used by fields and its measurement helpers.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/and161185/grovi/internal/errs"
)

// GeoJSON geometry types understood by the package.
const (
	TypePoint        = "Point"
	TypeLineString   = "LineString"
	TypePolygon      = "Polygon"
	TypeMultiPolygon = "MultiPolygon"
)

// Point is a [lng, lat] position. A third (altitude) element is dropped on decode.
type Point [2]float64

// Lng returns the longitude.
func (p Point) Lng() float64 { return p[0] }

// Lat returns the latitude.
func (p Point) Lat() float64 { return p[1] }

// Ring is a closed linear ring.
type Ring []Point

// Polygon is an outer ring followed by optional holes.
type Polygon []Ring

// Geometry is a GeoJSON geometry object with lazily decoded coordinates.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// NewPoint builds a Point geometry.
func NewPoint(p Point) Geometry { return mustBuild(TypePoint, p) }

// NewLineString builds a LineString geometry.
func NewLineString(pts ...Point) Geometry { return mustBuild(TypeLineString, pts) }

// NewPolygon builds a Polygon geometry.
func NewPolygon(rings ...Ring) Geometry { return mustBuild(TypePolygon, rings) }

// NewMultiPolygon builds a MultiPolygon geometry.
func NewMultiPolygon(polys ...Polygon) Geometry { return mustBuild(TypeMultiPolygon, polys) }

func mustBuild(typ string, coords any) Geometry {
	raw, err := json.Marshal(coords)
	if err != nil {
		panic(err) // float arrays always marshal
	}
	return Geometry{Type: typ, Coordinates: raw}
}

// IsZero reports whether g carries no geometry at all.
func (g Geometry) IsZero() bool { return g.Type == "" && len(g.Coordinates) == 0 }

// Point decodes a Point geometry.
func (g Geometry) Point() (Point, error) {
	var p Point
	if g.Type != TypePoint {
		return p, typeErr(g.Type, TypePoint)
	}
	return p, g.decode(&p)
}

// LineString decodes a LineString geometry.
func (g Geometry) LineString() ([]Point, error) {
	if g.Type != TypeLineString {
		return nil, typeErr(g.Type, TypeLineString)
	}
	var pts []Point
	return pts, g.decode(&pts)
}

// Polygons decodes a Polygon or MultiPolygon into its member polygons.
func (g Geometry) Polygons() ([]Polygon, error) {
	switch g.Type {
	case TypePolygon:
		var p Polygon
		if err := g.decode(&p); err != nil {
			return nil, err
		}
		return []Polygon{p}, nil
	case TypeMultiPolygon:
		var ps []Polygon
		if err := g.decode(&ps); err != nil {
			return nil, err
		}
		return ps, nil
	default:
		return nil, typeErr(g.Type, "Polygon or MultiPolygon")
	}
}

func (g Geometry) decode(dst any) error {
	if len(g.Coordinates) == 0 {
		return fmt.Errorf("%s: empty coordinates: %w", g.Type, errs.ErrValidation)
	}
	if err := json.Unmarshal(g.Coordinates, dst); err != nil {
		return fmt.Errorf("%s coordinates: %w", g.Type, errors.Join(errs.ErrValidation, err))
	}
	return nil
}

func typeErr(got, want string) error {
	return fmt.Errorf("geometry type %q, want %s: %w", got, want, errs.ErrUnsupported)
}

// ValidateArea checks that g is a polygonal geometry whose rings are closed and have
// at least four positions with coordinates inside WGS84 bounds.
func ValidateArea(g Geometry) error {
	polys, err := g.Polygons()
	if err != nil {
		return err
	}
	if len(polys) == 0 {
		return fmt.Errorf("no polygons: %w", errs.ErrValidation)
	}
	for i, p := range polys {
		if len(p) == 0 {
			return fmt.Errorf("polygon[%d]: no rings: %w", i, errs.ErrValidation)
		}
		for j, r := range p {
			if len(r) < 4 {
				return fmt.Errorf("polygon[%d] ring[%d]: %d positions: %w", i, j, len(r), errs.ErrValidation)
			}
			if r[0] != r[len(r)-1] {
				return fmt.Errorf("polygon[%d] ring[%d]: not closed: %w", i, j, errs.ErrValidation)
			}
			for _, pt := range r {
				if pt.Lng() < -180 || pt.Lng() > 180 || pt.Lat() < -90 || pt.Lat() > 90 {
					return fmt.Errorf("polygon[%d] ring[%d]: position out of range: %w", i, j, errs.ErrValidation)
				}
			}
		}
	}
	return nil
}
