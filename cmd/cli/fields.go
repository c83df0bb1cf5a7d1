package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/grovi/internal/app"
	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/fields"
	"github.com/and161185/grovi/internal/geo"
	"github.com/and161185/grovi/internal/model"
)

// thumbWorkers bounds concurrent thumbnail requests of "fields -thumbs".
const thumbWorkers = 4

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func parseID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("need -id: %w", errUsage)
	}
	id, err := uuid.FromString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("-id %q is not a uuid: %w", s, errs.ErrValidation)
	}
	return id, nil
}

// readGeometry accepts a bare GeoJSON geometry, a Feature, or a FeatureCollection
// (first feature).
func readGeometry(raw []byte) (geo.Geometry, error) {
	var probe struct {
		Type     string          `json:"type"`
		Geometry json.RawMessage `json:"geometry"`
		Features []struct {
			Geometry json.RawMessage `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return geo.Geometry{}, fmt.Errorf("geometry file: %v: %w", err, errs.ErrValidation)
	}
	switch probe.Type {
	case "Feature":
		raw = probe.Geometry
	case "FeatureCollection":
		if len(probe.Features) == 0 {
			return geo.Geometry{}, fmt.Errorf("feature collection is empty: %w", errs.ErrValidation)
		}
		raw = probe.Features[0].Geometry
	}
	var g geo.Geometry
	if err := json.Unmarshal(raw, &g); err != nil || g.IsZero() {
		return geo.Geometry{}, fmt.Errorf("no geometry found: %w", errs.ErrValidation)
	}
	return g, nil
}

// fieldRow is a list entry; HasThumbnail is set only with -thumbs.
type fieldRow struct {
	model.Field
	HasThumbnail *bool `json:"has_thumbnail,omitempty"`
}

func cmdFields(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fields", flag.ContinueOnError)
	thumbs := fs.Bool("thumbs", false, "also check which fields have a preview image")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if !a.Session.IsAuthenticated() {
		return errs.ErrNotAuthenticated
	}
	list := a.Fields.Fields()
	rows := make([]fieldRow, len(list))
	for i, f := range list {
		rows[i].Field = f
	}
	if *thumbs {
		// Thumbnail never fails; missing previews resolve to "".
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(thumbWorkers)
		for i := range rows {
			g.Go(func() error {
				has := a.Fields.Thumbnail(gctx, rows[i].ID) != ""
				rows[i].HasThumbnail = &has
				return nil
			})
		}
		_ = g.Wait()
	}
	printJSON(out, rows)
	return nil
}

func cmdField(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("field", flag.ContinueOnError)
	idStr := fs.String("id", "", "field id")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := parseID(*idStr)
	if err != nil {
		return err
	}
	f, err := a.Fields.Get(ctx, id)
	if err != nil {
		return err
	}
	printJSON(out, f)
	return nil
}

// attrFlags registers the descriptive attribute flags shared by field-add and field-edit.
func attrFlags(fs *flag.FlagSet) map[string]*string {
	return map[string]*string{
		"name":    fs.String("name", "", "field name"),
		"crop":    fs.String("crop", "", "crop type"),
		"variety": fs.String("variety", "", "variety"),
		"season":  fs.String("season", "", "planting season"),
		"planted": fs.String("planted", "", "planting date YYYY-MM-DD"),
		"address": fs.String("address", "", "address"),
	}
}

func cmdFieldAdd(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("field-add", flag.ContinueOnError)
	attrs := attrFlags(fs)
	geomPath := fs.String("geom", "", "GeoJSON file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *attrs["name"] == "" || *geomPath == "" {
		return fmt.Errorf("need -name and -geom: %w", errUsage)
	}
	raw, err := readAll(*geomPath)
	if err != nil {
		return err
	}
	g, err := readGeometry(raw)
	if err != nil {
		return err
	}
	f, err := a.Fields.Create(ctx, model.FieldInput{
		Name:           *attrs["name"],
		CropType:       *attrs["crop"],
		Variety:        *attrs["variety"],
		PlantingSeason: *attrs["season"],
		PlantingDate:   *attrs["planted"],
		Address:        *attrs["address"],
		Geometry:       g,
	})
	if err != nil {
		return err
	}
	printJSON(out, f)
	return nil
}

func cmdFieldEdit(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("field-edit", flag.ContinueOnError)
	idStr := fs.String("id", "", "field id")
	attrs := attrFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := parseID(*idStr)
	if err != nil {
		return err
	}
	// only flags given on the command line are sent, so "-crop ''" clears the crop
	var upd model.FieldUpdate
	targets := map[string]**string{
		"name":    &upd.Name,
		"crop":    &upd.CropType,
		"variety": &upd.Variety,
		"season":  &upd.PlantingSeason,
		"planted": &upd.PlantingDate,
		"address": &upd.Address,
	}
	fs.Visit(func(fl *flag.Flag) {
		if dst, ok := targets[fl.Name]; ok {
			*dst = attrs[fl.Name]
		}
	})
	if upd.IsEmpty() {
		return fmt.Errorf("nothing to change: %w", errUsage)
	}
	f, err := a.Fields.Update(ctx, id, upd)
	if err != nil {
		return err
	}
	printJSON(out, f)
	return nil
}

func cmdFieldRm(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("field-rm", flag.ContinueOnError)
	idStr := fs.String("id", "", "field id")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := parseID(*idStr)
	if err != nil {
		return err
	}
	if err := a.Fields.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func cmdThumb(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("thumb", flag.ContinueOnError)
	idStr := fs.String("id", "", "field id")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := parseID(*idStr)
	if err != nil {
		return err
	}
	data := a.Fields.Thumbnail(ctx, id)
	if data == "" {
		return fmt.Errorf("no preview image: %w", errs.ErrNotFound)
	}
	fmt.Fprintln(out, a.API.ResolveURL(data))
	return nil
}

// dataURL wraps an image file as a base64 data URL. Content that already is a data
// URL is passed through.
func dataURL(name string, raw []byte) string {
	if s := strings.TrimSpace(string(raw)); strings.HasPrefix(s, "data:") {
		return s
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if ct == "" {
		ct = http.DetectContentType(raw)
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

func cmdThumbSet(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("thumb-set", flag.ContinueOnError)
	idStr := fs.String("id", "", "field id")
	file := fs.String("file", "", "image file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := parseID(*idStr)
	if err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("need -file: %w", errUsage)
	}
	raw, err := readAll(*file)
	if err != nil {
		return err
	}
	if err := a.Fields.SaveThumbnail(ctx, id, dataURL(*file, raw)); err != nil {
		return err
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func cmdExport(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	idStr := fs.String("id", "", "field id")
	format := fs.String("format", string(fields.FormatKML), "kml|geojson|csv|shp|gpkg")
	dir := fs.String("o", ".", "output directory")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := parseID(*idStr)
	if err != nil {
		return err
	}
	f, ok := a.Fields.Find(id)
	if !ok {
		if f, err = a.Fields.Get(ctx, id); err != nil {
			return err
		}
	}
	file, err := a.Fields.Download(ctx, f, fields.Format(strings.ToLower(*format)))
	if err != nil {
		return err
	}
	path := filepath.Join(*dir, file.Name)
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return err
	}
	fmt.Fprintln(out, path)
	return nil
}
