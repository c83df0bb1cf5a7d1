package geo

import "math"

// earthRadius is the WGS84 equatorial radius in metres.
const earthRadius = 6378137.0

// Area returns the geodesic area of a polygonal geometry in square metres.
// Holes are subtracted. Non-polygonal geometries have zero area.
func Area(g Geometry) float64 {
	polys, err := g.Polygons()
	if err != nil {
		return 0
	}
	var total float64
	for _, p := range polys {
		total += polygonArea(p)
	}
	return total
}

func polygonArea(p Polygon) float64 {
	if len(p) == 0 {
		return 0
	}
	a := math.Abs(ringArea(p[0]))
	for _, hole := range p[1:] {
		a -= math.Abs(ringArea(hole))
	}
	return a
}

// ringArea follows Chamberlain and Duquette, "Some Algorithms for Polygons on a Sphere".
func ringArea(r Ring) float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		var lo, mid, hi int
		switch i {
		case n - 2:
			lo, mid, hi = n-2, n-1, 0
		case n - 1:
			lo, mid, hi = n-1, 0, 1
		default:
			lo, mid, hi = i, i+1, i+2
		}
		sum += (rad(r[hi].Lng()) - rad(r[lo].Lng())) * math.Sin(rad(r[mid].Lat()))
	}
	return sum * earthRadius * earthRadius / 2
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// Centroid returns the area-weighted centroid of the outer rings of a polygonal geometry.
// Degenerate rings fall back to the vertex average. ok is false for unusable input.
func Centroid(g Geometry) (p Point, ok bool) {
	polys, err := g.Polygons()
	if err != nil {
		return Point{}, false
	}
	var cx, cy, wsum float64
	var vx, vy float64
	var vn int
	for _, poly := range polys {
		if len(poly) == 0 || len(poly[0]) == 0 {
			continue
		}
		outer := poly[0]
		x, y, a := planarCentroid(outer)
		if a != 0 {
			cx += x * a
			cy += y * a
			wsum += a
		}
		for _, pt := range outer {
			vx += pt.Lng()
			vy += pt.Lat()
			vn++
		}
	}
	switch {
	case wsum != 0:
		return Point{cx / wsum, cy / wsum}, true
	case vn > 0:
		return Point{vx / float64(vn), vy / float64(vn)}, true
	default:
		return Point{}, false
	}
}

// planarCentroid applies the shoelace formula in lng/lat space; a is the absolute area.
func planarCentroid(r Ring) (x, y, a float64) {
	var signed float64
	for i := 0; i+1 < len(r); i++ {
		cross := r[i].Lng()*r[i+1].Lat() - r[i+1].Lng()*r[i].Lat()
		signed += cross
		x += (r[i].Lng() + r[i+1].Lng()) * cross
		y += (r[i].Lat() + r[i+1].Lat()) * cross
	}
	if signed == 0 {
		return 0, 0, 0
	}
	signed /= 2
	x /= 6 * signed
	y /= 6 * signed
	return x, y, math.Abs(signed)
}
