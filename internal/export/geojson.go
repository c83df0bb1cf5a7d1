package export

import (
	"encoding/json"

	"github.com/and161185/grovi/internal/geo"
	"github.com/and161185/grovi/internal/model"
)

// GeoJSONContentType is the content type of GeoJSON downloads.
const GeoJSONContentType = "application/geo+json"

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   geo.Geometry   `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// GeoJSON renders f as an indented single-feature collection.
func GeoJSON(f model.Field) ([]byte, error) {
	fc := FeatureCollection{
		Type: "FeatureCollection",
		Features: []Feature{{
			Type:     "Feature",
			Geometry: f.Geometry,
			Properties: map[string]any{
				"name":          f.Name,
				"crop_type":     nullable(f.CropType),
				"area_m2":       f.AreaM2,
				"planting_date": nullable(f.PlantingDate),
			},
		}},
	}
	return json.MarshalIndent(fc, "", "  ")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
