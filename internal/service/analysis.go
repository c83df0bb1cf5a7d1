package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
	"github.com/and161185/grovi/internal/repository"
)

// Snapshot request bounds.
const (
	DefaultSnapshotLimit = 4
	MaxSnapshotLimit     = 100
	MaxAnalysisCount     = 24
)

// AnalysisService serves vegetation-index snapshots and time series of owned fields.
type AnalysisService interface {
	ListSnapshots(ctx context.Context, userID, fieldID uuid.UUID, t model.IndexType, limit int) ([]model.Snapshot, error)
	ClearSnapshots(ctx context.Context, userID, fieldID uuid.UUID, t model.IndexType) (int64, error)
	// AnalyzeHistorical stores count new snapshots. Zero created snapshots is a result, not an error.
	AnalyzeHistorical(ctx context.Context, userID, fieldID uuid.UUID, t model.IndexType, count int, clearOld bool) (model.AnalysisResult, error)
	TimeSeries(ctx context.Context, userID, fieldID uuid.UUID, t model.IndexType, kind model.TimeSeriesKind, start, end time.Time) ([]model.TimeSeriesPoint, error)
}

type AnalysisServiceImpl struct {
	fields   repository.FieldRepository
	snaps    repository.SnapshotRepository
	analyzer Analyzer
	now      func() time.Time
}

var _ AnalysisService = (*AnalysisServiceImpl)(nil)

// NewAnalysisService constructs AnalysisService.
func NewAnalysisService(fields repository.FieldRepository, snaps repository.SnapshotRepository, a Analyzer) *AnalysisServiceImpl {
	return &AnalysisServiceImpl{fields: fields, snaps: snaps, analyzer: a, now: time.Now}
}

func (s *AnalysisServiceImpl) owned(ctx context.Context, userID, fieldID uuid.UUID, t model.IndexType) (*model.Field, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unsupported vi_type %q: %w", t, errs.ErrValidation)
	}
	return s.fields.Get(ctx, userID, fieldID)
}

// ListSnapshots returns the newest snapshots of an owned field.
func (s *AnalysisServiceImpl) ListSnapshots(ctx context.Context, userID, fieldID uuid.UUID, t model.IndexType, limit int) ([]model.Snapshot, error) {
	if _, err := s.owned(ctx, userID, fieldID, t); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultSnapshotLimit
	case limit > MaxSnapshotLimit:
		limit = MaxSnapshotLimit
	}
	return s.snaps.List(ctx, fieldID, t, limit)
}

// ClearSnapshots deletes the snapshots of one index.
func (s *AnalysisServiceImpl) ClearSnapshots(ctx context.Context, userID, fieldID uuid.UUID, t model.IndexType) (int64, error) {
	if _, err := s.owned(ctx, userID, fieldID, t); err != nil {
		return 0, err
	}
	return s.snaps.DeleteByType(ctx, fieldID, t)
}

// AnalyzeHistorical runs the analyzer and stores its snapshots.
func (s *AnalysisServiceImpl) AnalyzeHistorical(ctx context.Context, userID, fieldID uuid.UUID, t model.IndexType, count int, clearOld bool) (model.AnalysisResult, error) {
	f, err := s.owned(ctx, userID, fieldID, t)
	if err != nil {
		return model.AnalysisResult{}, err
	}
	if count < 1 || count > MaxAnalysisCount {
		return model.AnalysisResult{}, fmt.Errorf("count must be 1..%d: %w", MaxAnalysisCount, errs.ErrValidation)
	}
	snaps, err := s.analyzer.Snapshots(ctx, *f, t, count, s.now())
	if err != nil {
		return model.AnalysisResult{}, err
	}
	if len(snaps) == 0 {
		return model.AnalysisResult{Message: "no usable satellite data for this period"}, nil
	}
	if err := s.snaps.Insert(ctx, fieldID, t, snaps, clearOld); err != nil {
		return model.AnalysisResult{}, err
	}
	dates := map[string]struct{}{}
	for _, sn := range snaps {
		dates[sn.SnapshotDate.Format("2006-01-02")] = struct{}{}
	}
	return model.AnalysisResult{
		SnapshotsCreated: len(snaps),
		UniqueDates:      len(dates),
		Message:          fmt.Sprintf("created %d %s snapshots", len(snaps), t),
	}, nil
}

// TimeSeries returns the analyzer series for an owned field.
func (s *AnalysisServiceImpl) TimeSeries(ctx context.Context, userID, fieldID uuid.UUID, t model.IndexType, kind model.TimeSeriesKind, start, end time.Time) ([]model.TimeSeriesPoint, error) {
	f, err := s.owned(ctx, userID, fieldID, t)
	if err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("analysis_type %q: %w", kind, errs.ErrValidation)
	}
	return s.analyzer.Series(ctx, *f, t, kind, start, end)
}
