package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
)

type seriesPoint struct {
	MeasurementDate string  `json:"measurement_date"`
	VIValue         float64 `json:"vi_value"`
}

type seriesBody struct {
	Timeseries []seriesPoint `json:"timeseries"`
}

// indexType reads vi_type, NDVI when absent. Unknown names are left for the service to reject.
func indexType(r *http.Request) model.IndexType {
	v := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("vi_type")))
	if v == "" {
		return model.NDVI
	}
	return model.IndexType(v)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, errs.ErrValidation)
	}
	return n, nil
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false: %w", name, errs.ErrValidation)
	}
	return b, nil
}

var queryDateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func dateParam(r *http.Request, name string) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return time.Time{}, fmt.Errorf("%s is required: %w", name, errs.ErrValidation)
	}
	for _, l := range queryDateLayouts {
		if t, err := time.Parse(l, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s %q is not a date: %w", name, v, errs.ErrValidation)
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.invalidID(w)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	snaps, err := s.analysis.ListSnapshots(r.Context(), userID(r), id, indexType(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if snaps == nil {
		snaps = []model.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) clearSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.invalidID(w)
		return
	}
	n, err := s.analysis.ClearSnapshots(r.Context(), userID(r), id, indexType(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) analyzeHistorical(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.invalidID(w)
		return
	}
	count, err := intParam(r, "count", 4)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	clearOld, err := boolParam(r, "clear_old", false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.analysis.AnalyzeHistorical(r.Context(), userID(r), id, indexType(r), count, clearOld)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) timeSeries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.invalidID(w)
		return
	}
	start, err := dateParam(r, "start_date")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	end, err := dateParam(r, "end_date")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	kind := model.TimeSeriesKind(r.URL.Query().Get("analysis_type"))
	if kind == "" {
		kind = model.MonthlyRange
	}
	pts, err := s.analysis.TimeSeries(r.Context(), userID(r), id, indexType(r), kind, start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body := seriesBody{Timeseries: make([]seriesPoint, 0, len(pts))}
	for _, p := range pts {
		body.Timeseries = append(body.Timeseries, seriesPoint{
			MeasurementDate: p.Date.Format("2006-01-02"),
			VIValue:         p.Value,
		})
	}
	writeJSON(w, http.StatusOK, body)
}
