package vi

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/grovi/internal/api"
	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
)

// Defaults used by the analysis views.
const (
	DefaultSnapshotLimit = 4
	DefaultAnalysisCount = 4

	MsgAnalysisFailed  = "analysis failed"
	MsgSnapshotsFailed = "could not load snapshots"
	MsgSeriesFailed    = "could not load the time series"
	MsgNoSatelliteData = "no usable satellite data for this period"
)

// Authenticator reports whether remote calls may be made.
type Authenticator interface {
	IsAuthenticated() bool
}

// Service reads snapshots and time series. Nothing is cached.
type Service struct {
	api  *api.Client
	auth Authenticator
	log  *zap.Logger
}

// NewService constructs a Service.
func NewService(c *api.Client, auth Authenticator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{api: c, auth: auth, log: log}
}

func (s *Service) check(fieldID uuid.UUID, t model.IndexType) error {
	if s.auth == nil || !s.auth.IsAuthenticated() {
		return errs.ErrNotAuthenticated
	}
	if fieldID == uuid.Nil {
		return fmt.Errorf("empty field id: %w", errs.ErrValidation)
	}
	if !t.Valid() {
		return fmt.Errorf("index type %q: %w", t, errs.ErrUnsupported)
	}
	return nil
}

func snapshotsPath(fieldID uuid.UUID) string {
	return "/vi-analysis/snapshots/" + fieldID.String()
}

// ListSnapshots returns up to limit snapshots, newest first.
func (s *Service) ListSnapshots(ctx context.Context, fieldID uuid.UUID, t model.IndexType, limit int) ([]model.Snapshot, error) {
	if err := s.check(fieldID, t); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}
	q := url.Values{"vi_type": {string(t)}, "limit": {strconv.Itoa(limit)}}
	var out []model.Snapshot
	if err := s.api.Get(ctx, snapshotsPath(fieldID), q, &out); err != nil {
		return nil, api.WithFallback(err, MsgSnapshotsFailed)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SnapshotDate.After(out[j].SnapshotDate) })
	return out, nil
}

// ClearSnapshots deletes every snapshot of the field for index type t.
func (s *Service) ClearSnapshots(ctx context.Context, fieldID uuid.UUID, t model.IndexType) error {
	if err := s.check(fieldID, t); err != nil {
		return err
	}
	return s.api.Delete(ctx, snapshotsPath(fieldID), url.Values{"vi_type": {string(t)}})
}

// RequestAnalysis asks the backend for count historical snapshots. A result with
// zero snapshots means no usable satellite data and is not an error.
func (s *Service) RequestAnalysis(ctx context.Context, fieldID uuid.UUID, t model.IndexType, count int) (model.AnalysisResult, error) {
	if err := s.check(fieldID, t); err != nil {
		return model.AnalysisResult{}, err
	}
	if count <= 0 {
		count = DefaultAnalysisCount
	}
	q := url.Values{"vi_type": {string(t)}, "count": {strconv.Itoa(count)}, "clear_old": {"true"}}
	var res model.AnalysisResult
	path := "/vi-analysis/" + fieldID.String() + "/analyze-historical"
	if err := s.api.Post(ctx, path, q, nil, &res); err != nil {
		return model.AnalysisResult{}, api.WithFallback(err, MsgAnalysisFailed)
	}
	return res, nil
}

// Reanalyze clears old snapshots (failure is logged, not returned), requests a
// fresh analysis and lists the new snapshots.
func (s *Service) Reanalyze(ctx context.Context, fieldID uuid.UUID, t model.IndexType, count int) (model.AnalysisResult, []model.Snapshot, error) {
	if err := s.check(fieldID, t); err != nil {
		return model.AnalysisResult{}, nil, err
	}
	if err := s.ClearSnapshots(ctx, fieldID, t); err != nil {
		s.log.Warn("clear snapshots before analysis", zap.Stringer("field", fieldID), zap.Error(err))
	}
	res, err := s.RequestAnalysis(ctx, fieldID, t, count)
	if err != nil {
		return model.AnalysisResult{}, nil, err
	}
	if res.SnapshotsCreated == 0 {
		return res, nil, nil
	}
	limit := count
	if limit <= 0 {
		limit = DefaultAnalysisCount
	}
	snaps, err := s.ListSnapshots(ctx, fieldID, t, limit)
	if err != nil {
		return res, nil, err
	}
	return res, snaps, nil
}

// Summary is the latest snapshot with its classification.
type Summary struct {
	Snapshot model.Snapshot `json:"snapshot"`
	Health   Health         `json:"health"`
	Trend    int            `json:"trend"` // -1 worse, 0 same, 1 better than the previous snapshot
}

// Summarize classifies the newest snapshot of a newest-first list.
func Summarize(snaps []model.Snapshot) (Summary, bool) {
	if len(snaps) == 0 {
		return Summary{}, false
	}
	latest := snaps[0]
	h, err := Classify(latest.MeanValue, latest.IndexType)
	if err != nil {
		return Summary{}, false
	}
	sum := Summary{Snapshot: latest, Health: h}
	if len(snaps) > 1 {
		if prev, err := Classify(snaps[1].MeanValue, snaps[1].IndexType); err == nil {
			switch d := h.Status.rank() - prev.Status.rank(); {
			case d > 0:
				sum.Trend = 1
			case d < 0:
				sum.Trend = -1
			}
		}
	}
	return sum, true
}
