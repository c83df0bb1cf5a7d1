package vi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/grovi/internal/api"
	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
)

// Window is a time series request window.
type Window struct {
	Kind  model.TimeSeriesKind
	Start time.Time
	End   time.Time
}

// MonthRange spans the first day of startMonth to the last day of endMonth in year.
func MonthRange(year, startMonth, endMonth int) (Window, error) {
	if startMonth < 1 || startMonth > 12 || endMonth < 1 || endMonth > 12 || startMonth > endMonth {
		return Window{}, fmt.Errorf("months %d..%d: %w", startMonth, endMonth, errs.ErrValidation)
	}
	start := time.Date(year, time.Month(startMonth), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.Month(endMonth)+1, 0, 0, 0, 0, 0, time.UTC)
	return Window{Kind: model.MonthlyRange, Start: start, End: end}, nil
}

// Year spans January 1 to December 31 of year.
func Year(year int) Window {
	return Window{
		Kind:  model.FullYear,
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

// TenYears spans the ten years before now.
func TenYears(now time.Time) Window {
	now = now.UTC()
	return Window{Kind: model.TenYearAvg, Start: now.AddDate(-10, 0, 0), End: now}
}

// wirePoint accepts both key spellings the backend has used.
type wirePoint struct {
	MeasurementDate string   `json:"measurement_date"`
	Date            string   `json:"date"`
	VIValue         *float64 `json:"vi_value"`
	Value           *float64 `json:"value"`
}

type wireSeries struct {
	Timeseries []wirePoint `json:"timeseries"`
}

// TimeSeries fetches and normalizes the series of index t over w.
func (s *Service) TimeSeries(ctx context.Context, fieldID uuid.UUID, t model.IndexType, w Window) ([]model.TimeSeriesPoint, error) {
	if err := s.check(fieldID, t); err != nil {
		return nil, err
	}
	if !w.Kind.Valid() {
		return nil, fmt.Errorf("analysis type %q: %w", w.Kind, errs.ErrValidation)
	}
	q := url.Values{
		"vi_type":       {string(t)},
		"start_date":    {w.Start.UTC().Format(time.RFC3339)},
		"end_date":      {w.End.UTC().Format(time.RFC3339)},
		"analysis_type": {string(w.Kind)},
	}
	var raw wireSeries
	if err := s.api.Get(ctx, "/vi/timeseries/"+fieldID.String(), q, &raw); err != nil {
		return nil, api.WithFallback(err, MsgSeriesFailed)
	}
	return normalize(raw.Timeseries, w.Kind)
}

// normalize converts wire points into canonical ones. Ten-year averages are sorted
// by year ascending; other kinds keep the backend order.
func normalize(in []wirePoint, kind model.TimeSeriesKind) ([]model.TimeSeriesPoint, error) {
	out := make([]model.TimeSeriesPoint, 0, len(in))
	for i, p := range in {
		ds := p.MeasurementDate
		if ds == "" {
			ds = p.Date
		}
		d, err := parseDate(ds)
		if err != nil {
			return nil, fmt.Errorf("timeseries[%d]: %w", i, err)
		}
		v := p.VIValue
		if v == nil {
			v = p.Value
		}
		if v == nil {
			return nil, fmt.Errorf("timeseries[%d]: no value: %w", i, errs.ErrValidation)
		}
		out = append(out, model.TimeSeriesPoint{Date: d, Value: *v})
	}
	if kind == model.TenYearAvg {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Year() < out[j].Date.Year() })
	}
	return out, nil
}

// DecodePoints parses a raw timeseries array.
func DecodePoints(raw []byte, kind model.TimeSeriesKind) ([]model.TimeSeriesPoint, error) {
	var in []wirePoint
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	return normalize(in, kind)
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02", "2006-01", "2006"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q: %w", s, errs.ErrValidation)
}
