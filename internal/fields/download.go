package fields

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/grovi/internal/api"
	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/export"
	"github.com/and161185/grovi/internal/model"
)

// MsgExportFailed is shown when a backend-only export fails without detail.
const MsgExportFailed = "could not export the file, please try again"

// Format is a download format.
type Format string

// Download formats.
const (
	FormatGeoJSON    Format = "geojson"
	FormatKML        Format = "kml"
	FormatCSV        Format = "csv"
	FormatShapefile  Format = "shp"
	FormatGeoPackage Format = "gpkg"
)

// Formats lists the supported formats.
var Formats = []Format{FormatShapefile, FormatGeoPackage, FormatKML, FormatGeoJSON, FormatCSV}

// File is a ready-to-save download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Download produces f in the given format. GeoJSON and CSV are built locally, KML
// comes from the backend with a local fallback, Shapefile and GeoPackage come from
// the backend only.
func (r *Repository) Download(ctx context.Context, f model.Field, format Format) (File, error) {
	base := export.SafeFilename(f.Name, "field_"+f.ID.String())

	switch format {
	case FormatGeoJSON:
		b, err := export.GeoJSON(f)
		if err != nil {
			return File{}, err
		}
		return File{Name: base + ".geojson", ContentType: export.GeoJSONContentType, Data: b}, nil

	case FormatCSV:
		return File{Name: base + ".csv", ContentType: export.CSVContentType, Data: export.CSV(f)}, nil

	case FormatKML:
		if err := r.requireSession(); err == nil {
			blob, err := r.api.Download(ctx, exportPath(f, format), nil)
			if err == nil {
				return File{Name: base + ".kml", ContentType: export.KMLContentType, Data: blob.Data}, nil
			}
			r.log.Warn("backend KML export failed, converting locally", zap.Error(err))
		}
		return File{Name: base + ".kml", ContentType: export.KMLContentType, Data: []byte(export.KML(f))}, nil

	case FormatShapefile, FormatGeoPackage:
		if err := r.requireSession(); err != nil {
			return File{}, err
		}
		blob, err := r.api.Download(ctx, exportPath(f, format), nil)
		if err != nil {
			return File{}, api.WithFallback(err, MsgExportFailed)
		}
		if format == FormatShapefile {
			return File{Name: base + ".zip", ContentType: "application/zip", Data: blob.Data}, nil
		}
		return File{Name: base + ".gpkg", ContentType: "application/geopackage+sqlite3", Data: blob.Data}, nil

	default:
		return File{}, fmt.Errorf("format %q: %w", format, errs.ErrUnsupported)
	}
}

func exportPath(f model.Field, format Format) string {
	return "/fields/" + f.ID.String() + "/export/" + string(format)
}
