package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"

	"github.com/and161185/grovi/internal/app"
	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/export"
	"github.com/and161185/grovi/internal/model"
	"github.com/and161185/grovi/internal/tunnel"
	"github.com/and161185/grovi/internal/vi"
)

// viFlags registers -id and -vi.
func viFlags(fs *flag.FlagSet) (id, index *string) {
	return fs.String("id", "", "field id"), fs.String("vi", string(model.NDVI), "vegetation index")
}

func cmdSnapshots(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("snapshots", flag.ContinueOnError)
	idStr, index := viFlags(fs)
	limit := fs.Int("limit", vi.DefaultSnapshotLimit, "max snapshots")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := parseID(*idStr)
	if err != nil {
		return err
	}
	t, err := model.ParseIndexType(*index)
	if err != nil {
		return err
	}
	snaps, err := a.VI.ListSnapshots(ctx, id, t, *limit)
	if err != nil {
		return err
	}
	printJSON(out, snaps)
	return nil
}

func cmdSnapshotsClear(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("snapshots-clear", flag.ContinueOnError)
	idStr, index := viFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := parseID(*idStr)
	if err != nil {
		return err
	}
	t, err := model.ParseIndexType(*index)
	if err != nil {
		return err
	}
	if err := a.VI.ClearSnapshots(ctx, id, t); err != nil {
		return err
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func cmdAnalyze(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	idStr, index := viFlags(fs)
	count := fs.Int("count", vi.DefaultAnalysisCount, "snapshots to request")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := parseID(*idStr)
	if err != nil {
		return err
	}
	t, err := model.ParseIndexType(*index)
	if err != nil {
		return err
	}
	res, snaps, err := a.VI.Reanalyze(ctx, id, t, *count)
	if err != nil {
		return err
	}
	if res.SnapshotsCreated == 0 {
		msg := res.Message
		if msg == "" {
			msg = vi.MsgNoSatelliteData
		}
		fmt.Fprintln(out, msg)
		return nil
	}
	printJSON(out, struct {
		Result    model.AnalysisResult `json:"result"`
		Snapshots []model.Snapshot     `json:"snapshots"`
	}{res, snaps})
	return nil
}

func cmdHealth(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	idStr, index := viFlags(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := parseID(*idStr)
	if err != nil {
		return err
	}
	t, err := model.ParseIndexType(*index)
	if err != nil {
		return err
	}
	snaps, err := a.VI.ListSnapshots(ctx, id, t, vi.DefaultSnapshotLimit)
	if err != nil {
		return err
	}
	sum, ok := vi.Summarize(snaps)
	if !ok {
		fmt.Fprintln(out, vi.MsgNoSatelliteData)
		return nil
	}
	printJSON(out, sum)
	return nil
}

// window builds the request window from the timeseries flags.
func window(kind string, year, from, to int, now time.Time) (vi.Window, error) {
	switch model.TimeSeriesKind(kind) {
	case model.MonthlyRange:
		return vi.MonthRange(year, from, to)
	case model.FullYear:
		return vi.Year(year), nil
	case model.TenYearAvg:
		return vi.TenYears(now), nil
	}
	return vi.Window{}, fmt.Errorf("-kind %q: %w", kind, errs.ErrValidation)
}

func cmdTimeSeries(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	now := time.Now().UTC()
	fs := flag.NewFlagSet("timeseries", flag.ContinueOnError)
	idStr, index := viFlags(fs)
	kind := fs.String("kind", string(model.MonthlyRange), "monthly_range|full_year|ten_year_avg")
	year := fs.Int("year", now.Year(), "year")
	from := fs.Int("from", 1, "first month (monthly_range)")
	to := fs.Int("to", int(now.Month()), "last month (monthly_range)")
	outPath := fs.String("o", "", "write .csv or .xlsx instead of JSON")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := parseID(*idStr)
	if err != nil {
		return err
	}
	t, err := model.ParseIndexType(*index)
	if err != nil {
		return err
	}
	w, err := window(*kind, *year, *from, *to, now)
	if err != nil {
		return err
	}
	pts, err := a.VI.TimeSeries(ctx, id, t, w)
	if err != nil {
		return err
	}
	if *outPath == "" {
		printJSON(out, pts)
		return nil
	}

	ts := export.TimeSeries{Index: t, Kind: w.Kind, Points: pts}
	if f, ok := a.Fields.Find(id); ok {
		ts.FieldName = f.Name
	}
	if info, err := os.Stat(*outPath); err == nil && info.IsDir() {
		*outPath = filepath.Join(*outPath, ts.Filename("field")+".csv")
	}
	var data []byte
	switch strings.ToLower(filepath.Ext(*outPath)) {
	case ".csv":
		data = export.TimeSeriesCSV(ts)
	case ".xlsx":
		var buf bytes.Buffer
		if err := export.TimeSeriesXLSX(&buf, ts); err != nil {
			return err
		}
		data = buf.Bytes()
	default:
		return fmt.Errorf("-o must end in .csv or .xlsx: %w", errs.ErrValidation)
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintln(out, *outPath)
	return nil
}

// cmdStatus prints backend health events as JSON lines. Without -watch it stops
// after the first event.
func cmdStatus(ctx context.Context, a *app.App, args []string, out io.Writer, opts ...tunnel.Option) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	watch := fs.Bool("watch", false, "keep watching and reconnect")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var last error
	err := a.Watcher(opts...).Run(ctx, func(ev tunnel.Event) {
		at := ev.At.UTC().Format(time.RFC3339)
		if ev.Connected() {
			b, _ := protojson.Marshal(ev.Status)
			fmt.Fprintf(out, "{\"at\":%q,\"health\":%s}\n", at, b)
			last = nil
		} else {
			msg := "disconnected"
			if ev.Err != nil {
				msg = ev.Err.Error()
			}
			fmt.Fprintf(out, "{\"at\":%q,\"error\":%q}\n", at, msg)
			last = fmt.Errorf("backend unreachable: %w", errs.ErrTransient)
		}
		if !*watch {
			cancel()
		}
	})
	if errors.Is(err, context.Canceled) {
		return last
	}
	return err
}
