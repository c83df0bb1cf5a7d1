package vi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/grovi/internal/api"
	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
)

type authFlag bool

func (a authFlag) IsAuthenticated() bool { return bool(a) }

type recorded struct {
	method string
	path   string
	query  map[string]string
}

func newService(t *testing.T, auth bool, h http.HandlerFunc) (*Service, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		mu.Lock()
		calls = append(calls, recorded{r.Method, r.URL.Path, q})
		mu.Unlock()
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c := api.New(srv.URL, api.WithLogger(zaptest.NewLogger(t)))
	return NewService(c, authFlag(auth), zaptest.NewLogger(t)), &calls
}

func TestListSnapshots_SortedNewestFirst(t *testing.T) {
	t.Parallel()
	fid := uuid.Must(uuid.NewV4())
	d := func(day int) time.Time { return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC) }
	s, calls := newService(t, true, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]model.Snapshot{
			{FieldID: fid, IndexType: model.NDVI, SnapshotDate: d(1)},
			{FieldID: fid, IndexType: model.NDVI, SnapshotDate: d(11)},
			{FieldID: fid, IndexType: model.NDVI, SnapshotDate: d(6)},
		})
	})

	snaps, err := s.ListSnapshots(context.Background(), fid, model.NDVI, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	require.Equal(t, d(11), snaps[0].SnapshotDate)
	require.Equal(t, d(1), snaps[2].SnapshotDate)

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	require.Equal(t, "/vi-analysis/snapshots/"+fid.String(), c.path)
	require.Equal(t, "NDVI", c.query["vi_type"])
	require.Equal(t, "4", c.query["limit"])
}

func TestService_Preconditions(t *testing.T) {
	t.Parallel()
	fid := uuid.Must(uuid.NewV4())
	s, calls := newService(t, false, func(w http.ResponseWriter, r *http.Request) {})
	_, err := s.ListSnapshots(context.Background(), fid, model.NDVI, 4)
	require.ErrorIs(t, err, errs.ErrNotAuthenticated)

	s.auth = authFlag(true)
	_, err = s.RequestAnalysis(context.Background(), uuid.Nil, model.NDVI, 4)
	require.ErrorIs(t, err, errs.ErrValidation)
	require.ErrorIs(t, s.ClearSnapshots(context.Background(), fid, "LAI"), errs.ErrUnsupported)
	require.Empty(t, *calls)
}

func TestRequestAnalysis_ZeroSnapshotsIsNotAnError(t *testing.T) {
	t.Parallel()
	fid := uuid.Must(uuid.NewV4())
	s, calls := newService(t, true, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"snapshots_created":0,"unique_dates":0,"message":"no cloud-free scenes"}`))
	})
	res, err := s.RequestAnalysis(context.Background(), fid, model.EVI, 6)
	require.NoError(t, err)
	require.Zero(t, res.SnapshotsCreated)
	require.Equal(t, "no cloud-free scenes", res.Message)

	c := (*calls)[0]
	require.Equal(t, http.MethodPost, c.method)
	require.Equal(t, "/vi-analysis/"+fid.String()+"/analyze-historical", c.path)
	require.Equal(t, "6", c.query["count"])
	require.Equal(t, "true", c.query["clear_old"])
}

func TestReanalyze_ClearFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	fid := uuid.Must(uuid.NewV4())
	s, calls := newService(t, true, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusInternalServerError)
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"snapshots_created":2,"unique_dates":2}`))
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"vi_type":"NDVI","snapshot_date":"2024-01-01T00:00:00Z","mean_value":0.5},
				{"vi_type":"NDVI","snapshot_date":"2024-01-06T00:00:00Z","mean_value":0.6}]`))
		}
	})
	res, snaps, err := s.Reanalyze(context.Background(), fid, model.NDVI, 2)
	require.NoError(t, err)
	require.Equal(t, 2, res.SnapshotsCreated)
	require.Len(t, snaps, 2)
	require.Equal(t, 0.6, snaps[0].MeanValue)

	methods := []string{}
	for _, c := range *calls {
		methods = append(methods, c.method)
	}
	require.Equal(t, []string{http.MethodDelete, http.MethodPost, http.MethodGet}, methods)
}

func TestReanalyze_NoDataSkipsListing(t *testing.T) {
	t.Parallel()
	s, calls := newService(t, true, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"snapshots_created":0,"unique_dates":0}`))
		}
	})
	res, snaps, err := s.Reanalyze(context.Background(), uuid.Must(uuid.NewV4()), model.NDVI, 4)
	require.NoError(t, err)
	require.Zero(t, res.SnapshotsCreated)
	require.Nil(t, snaps)
	require.Len(t, *calls, 2)
}

func TestTimeSeries_NormalizesKeys(t *testing.T) {
	t.Parallel()
	fid := uuid.Must(uuid.NewV4())
	s, calls := newService(t, true, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"timeseries":[
			{"measurement_date":"2022-06-01","vi_value":0.4},
			{"date":"2015-06-01T00:00:00Z","value":0.3},
			{"date":"2019","vi_value":0.35}
		]}`))
	})
	w := TenYears(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	pts, err := s.TimeSeries(context.Background(), fid, model.NDVI, w)
	require.NoError(t, err)
	require.Len(t, pts, 3)
	require.Equal(t, 2015, pts[0].Date.Year())
	require.Equal(t, 0.3, pts[0].Value)
	require.Equal(t, 2022, pts[2].Date.Year())

	c := (*calls)[0]
	require.Equal(t, "/vi/timeseries/"+fid.String(), c.path)
	require.Equal(t, "ten_year_avg", c.query["analysis_type"])
	require.Equal(t, "2014-06-01T00:00:00Z", c.query["start_date"])
}

func TestTimeSeries_BadPayload(t *testing.T) {
	t.Parallel()
	s, _ := newService(t, true, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"timeseries":[{"date":"2022-06-01"}]}`))
	})
	_, err := s.TimeSeries(context.Background(), uuid.Must(uuid.NewV4()), model.NDVI, Year(2022))
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.TimeSeries(context.Background(), uuid.Must(uuid.NewV4()), model.NDVI, Window{Kind: "weekly"})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestWindows(t *testing.T) {
	t.Parallel()
	w, err := MonthRange(2024, 2, 4)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), w.Start)
	require.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), w.End)
	require.Equal(t, model.MonthlyRange, w.Kind)

	w, err = MonthRange(2024, 2, 2)
	require.NoError(t, err)
	require.Equal(t, 29, w.End.Day(), "leap February")

	_, err = MonthRange(2024, 5, 2)
	require.ErrorIs(t, err, errs.ErrValidation)

	y := Year(2023)
	require.Equal(t, time.December, y.End.Month())
	require.Equal(t, 31, y.End.Day())
}

func TestDecodePoints(t *testing.T) {
	t.Parallel()
	pts, err := DecodePoints([]byte(`[{"date":"2024-01","value":0.2}]`), model.MonthlyRange)
	require.NoError(t, err)
	require.Equal(t, time.January, pts[0].Date.Month())

	_, err = DecodePoints([]byte(`[{"date":"soon","value":0.2}]`), model.MonthlyRange)
	require.ErrorIs(t, err, errs.ErrValidation)
}
