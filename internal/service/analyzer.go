package service

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
)

// SnapshotSpacing is the revisit interval of the synthetic analyzer.
const SnapshotSpacing = 5 * 24 * time.Hour

// Analyzer produces vegetation-index observations for a field.
type Analyzer interface {
	// Snapshots returns up to count observations ending at now, newest first.
	Snapshots(ctx context.Context, f model.Field, t model.IndexType, count int, now time.Time) ([]model.Snapshot, error)
	// Series returns points between start and end for kind.
	Series(ctx context.Context, f model.Field, t model.IndexType, kind model.TimeSeriesKind, start, end time.Time) ([]model.TimeSeriesPoint, error)
}

// Synthetic is a deterministic Analyzer for development and tests. The same field,
// index and date always yield the same value, inside the index range.
type Synthetic struct{}

var _ Analyzer = Synthetic{}

// Snapshots implements Analyzer.
func (Synthetic) Snapshots(_ context.Context, f model.Field, t model.IndexType, count int, now time.Time) ([]model.Snapshot, error) {
	r, ok := t.Range()
	if !ok {
		return nil, fmt.Errorf("index type %q: %w", t, errs.ErrUnsupported)
	}
	day := now.UTC().Truncate(24 * time.Hour)
	span := r.Max - r.Min
	out := make([]model.Snapshot, 0, count)
	for i := 0; i < count; i++ {
		d := day.Add(-time.Duration(i) * SnapshotSpacing)
		mean := level(f.ID, t, d, r)
		id, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		out = append(out, model.Snapshot{
			ID:           id,
			FieldID:      f.ID,
			IndexType:    t,
			SnapshotDate: d,
			MeanValue:    round4(mean),
			MinValue:     round4(math.Max(r.Min, mean-0.1*span)),
			MaxValue:     round4(math.Min(r.Max, mean+0.1*span)),
			Message:      "synthetic observation",
		})
	}
	return out, nil
}

// Series implements Analyzer. Monthly kinds give one point per month, the ten-year
// kind one point per year.
func (Synthetic) Series(_ context.Context, f model.Field, t model.IndexType, kind model.TimeSeriesKind, start, end time.Time) ([]model.TimeSeriesPoint, error) {
	r, ok := t.Range()
	if !ok {
		return nil, fmt.Errorf("index type %q: %w", t, errs.ErrUnsupported)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end before start: %w", errs.ErrValidation)
	}
	var out []model.TimeSeriesPoint
	switch kind {
	case model.MonthlyRange, model.FullYear:
		for d := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !d.After(end); d = d.AddDate(0, 1, 0) {
			out = append(out, model.TimeSeriesPoint{Date: d, Value: round4(level(f.ID, t, d, r))})
		}
	case model.TenYearAvg:
		for y := start.Year(); y <= end.Year(); y++ {
			d := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
			out = append(out, model.TimeSeriesPoint{Date: d, Value: round4(level(f.ID, t, d, r))})
		}
	default:
		return nil, fmt.Errorf("analysis type %q: %w", kind, errs.ErrValidation)
	}
	return out, nil
}

// level mixes a seasonal curve with per-field noise, staying within 20%..90% of the range.
func level(fieldID uuid.UUID, t model.IndexType, d time.Time, r model.Range) float64 {
	h := fnv.New64a()
	_, _ = h.Write(fieldID.Bytes())
	_, _ = h.Write([]byte(t))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(d.Unix()))
	_, _ = h.Write(buf[:])
	noise := float64(h.Sum64()%1000) / 1000

	season := (math.Sin(2*math.Pi*float64(d.YearDay())/365) + 1) / 2
	frac := 0.2 + 0.7*(0.7*season+0.3*noise)
	return r.Min + frac*(r.Max-r.Min)
}

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
