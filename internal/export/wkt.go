package export

import (
	"strings"

	"github.com/and161185/grovi/internal/geo"
)

// WKT renders g as Well-Known Text. Point, LineString, Polygon and MultiPolygon are
// supported; anything else, including undecodable coordinates, yields "".
func WKT(g geo.Geometry) string {
	switch g.Type {
	case geo.TypePoint:
		p, err := g.Point()
		if err != nil {
			return ""
		}
		return "POINT (" + pair(p) + ")"
	case geo.TypeLineString:
		pts, err := g.LineString()
		if err != nil {
			return ""
		}
		return "LINESTRING (" + pairs(pts) + ")"
	case geo.TypePolygon:
		polys, err := g.Polygons()
		if err != nil {
			return ""
		}
		return "POLYGON " + polygonText(polys[0])
	case geo.TypeMultiPolygon:
		polys, err := g.Polygons()
		if err != nil {
			return ""
		}
		parts := make([]string, len(polys))
		for i, p := range polys {
			parts[i] = polygonText(p)
		}
		return "MULTIPOLYGON (" + strings.Join(parts, ", ") + ")"
	default:
		return ""
	}
}

func polygonText(p geo.Polygon) string {
	rings := make([]string, len(p))
	for i, r := range p {
		rings[i] = "(" + pairs(r) + ")"
	}
	return "(" + strings.Join(rings, ", ") + ")"
}

func pairs(pts []geo.Point) string {
	out := make([]string, len(pts))
	for i, p := range pts {
		out[i] = pair(p)
	}
	return strings.Join(out, ", ")
}

func pair(p geo.Point) string { return num(p.Lng()) + " " + num(p.Lat()) }
