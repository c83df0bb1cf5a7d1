// Package vi reads vegetation-index snapshots and time series of a field and
// classifies index values into health bands.
package vi

import (
	"fmt"
	"math"

	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
)

// Status is a health band.
type Status string

// Health bands. NDWI measures water content and uses its own bands.
const (
	StatusDry       Status = "dry"
	StatusModerate  Status = "moderate"
	StatusSaturated Status = "saturated"
	StatusLow       Status = "low"
	StatusGood      Status = "good"
	StatusExcellent Status = "excellent"
)

// Health is a classified value.
type Health struct {
	Status     Status  `json:"status"`
	Percentage float64 `json:"percentage"`
}

// Percentage maps value onto 0..100 within the range of t, clamped.
func Percentage(value float64, t model.IndexType) (float64, error) {
	r, ok := t.Range()
	if !ok {
		return 0, fmt.Errorf("index type %q: %w", t, errs.ErrUnsupported)
	}
	pct := (value - r.Min) / (r.Max - r.Min) * 100
	return math.Max(0, math.Min(100, pct)), nil
}

// Classify returns the health band of value for index type t.
func Classify(value float64, t model.IndexType) (Health, error) {
	pct, err := Percentage(value, t)
	if err != nil {
		return Health{}, err
	}
	return Health{Status: band(pct, t), Percentage: pct}, nil
}

func band(pct float64, t model.IndexType) Status {
	if t == model.NDWI {
		switch {
		case pct < 30:
			return StatusDry
		case pct < 70:
			return StatusModerate
		default:
			return StatusSaturated
		}
	}
	switch {
	case pct < 30:
		return StatusLow
	case pct < 60:
		return StatusModerate
	case pct < 80:
		return StatusGood
	default:
		return StatusExcellent
	}
}

// rank orders bands for comparisons.
func (s Status) rank() int {
	switch s {
	case StatusLow, StatusDry:
		return 0
	case StatusModerate:
		return 1
	case StatusGood, StatusSaturated:
		return 2
	case StatusExcellent:
		return 3
	}
	return -1
}
