package export

import (
	"strings"

	"github.com/and161185/grovi/internal/model"
)

// CSVContentType is the content type of the CSV downloads.
const CSVContentType = "text/csv;charset=utf-8"

// bom makes spreadsheet applications pick UTF-8 for Thai text.
const bom = "\ufeff"

var fieldCSVHeader = []string{"name", "crop_type", "area_m2", "planting_date", "wkt"}

// CSV renders a single-row CSV of f with its geometry as WKT. Every value is
// double-quoted and embedded quotes are doubled; the header is not quoted.
func CSV(f model.Field) []byte {
	row := []string{f.Name, f.CropType, num(f.AreaM2), f.PlantingDate, WKT(f.Geometry)}
	return []byte(bom + strings.Join(fieldCSVHeader, ",") + "\n" + quoteAll(row))
}

// quoteAll is hand-rolled because encoding/csv only quotes when it has to.
func quoteAll(vals []string) string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	}
	return strings.Join(out, ",")
}
