// Package export converts fields and time series into downloadable formats.
// Everything here is pure: no I/O besides the writers handed in.
package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/and161185/grovi/internal/model"
)

// KML content type used for downloads.
const KMLContentType = "application/vnd.google-earth.kml+xml;charset=utf-8"

// KML renders f as a KML document with one Placemark per polygon. Only the outer ring of
// each polygon is written. Geometry that is neither Polygon nor MultiPolygon produces a
// document without placemarks.
func KML(f model.Field) string {
	polys, err := f.Geometry.Polygons()
	if err != nil {
		polys = nil
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<kml xmlns="http://www.opengis.net/kml/2.2">` + "\n")
	b.WriteString("  <Document>\n")
	fmt.Fprintf(&b, "    <name>%s</name>", esc(f.Name))

	placemarks := make([]string, 0, len(polys))
	for i, p := range polys {
		if len(p) == 0 {
			continue
		}
		name := f.Name
		if len(polys) > 1 {
			name += " " + strconv.Itoa(i+1)
		}
		coords := make([]string, 0, len(p[0]))
		for _, pt := range p[0] {
			coords = append(coords, num(pt.Lng())+","+num(pt.Lat())+",0")
		}
		placemarks = append(placemarks, placemark(name, f, strings.Join(coords, " ")))
	}
	b.WriteString(strings.Join(placemarks, "\n"))
	b.WriteString("\n  </Document>\n</kml>")
	return b.String()
}

func placemark(name string, f model.Field, coords string) string {
	var b strings.Builder
	b.WriteString("\n        <Placemark>\n")
	fmt.Fprintf(&b, "          <name>%s</name>\n", esc(name))
	b.WriteString("          <ExtendedData>\n")
	fmt.Fprintf(&b, "            <Data name=\"crop_type\"><value>%s</value></Data>\n", esc(f.CropType))
	fmt.Fprintf(&b, "            <Data name=\"area_m2\"><value>%s</value></Data>\n", num(f.AreaM2))
	fmt.Fprintf(&b, "            <Data name=\"planting_date\"><value>%s</value></Data>\n", esc(f.PlantingDate))
	b.WriteString("          </ExtendedData>\n")
	b.WriteString("          <Style><LineStyle><color>ff2b7a4b</color><width>2</width></LineStyle>" +
		"<PolyStyle><color>1a2b7a4b</color></PolyStyle></Style>\n")
	b.WriteString("          <Polygon>\n")
	fmt.Fprintf(&b, "            <outerBoundaryIs><LinearRing><coordinates>%s</coordinates></LinearRing></outerBoundaryIs>\n", coords)
	b.WriteString("          </Polygon>\n")
	b.WriteString("        </Placemark>")
	return b.String()
}

func esc(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// num formats a float the shortest way that round-trips, without exponent.
func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
