package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/and161185/grovi/internal/errs"
	"github.com/gofrs/uuid/v5"
)

// IndexType names a vegetation index.
type IndexType string

// Supported vegetation indices.
const (
	NDVI  IndexType = "NDVI"
	EVI   IndexType = "EVI"
	GNDVI IndexType = "GNDVI"
	NDWI  IndexType = "NDWI"
	SAVI  IndexType = "SAVI"
	VCI   IndexType = "VCI"
)

// IndexTypes lists every supported index in display order.
var IndexTypes = []IndexType{NDVI, EVI, GNDVI, NDWI, SAVI, VCI}

// Range is the closed value interval of an index.
type Range struct {
	Min float64
	Max float64
}

var ranges = map[IndexType]Range{
	NDVI:  {0, 1},
	EVI:   {0, 1},
	GNDVI: {0, 1},
	SAVI:  {0, 1},
	NDWI:  {-0.5, 0.5},
	VCI:   {0, 100},
}

// Range returns the value interval of t. Unknown types report ok=false.
func (t IndexType) Range() (Range, bool) {
	r, ok := ranges[t]
	return r, ok
}

// Valid reports whether t is a supported index.
func (t IndexType) Valid() bool {
	_, ok := ranges[t]
	return ok
}

// ParseIndexType parses a case-insensitive index name.
func ParseIndexType(s string) (IndexType, error) {
	t := IndexType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("index type %q: %w", s, errs.ErrUnsupported)
	}
	return t, nil
}

// Snapshot is one analysed satellite observation of a field. Values are read against
// the range of the snapshot's own index type.
type Snapshot struct {
	ID           uuid.UUID `json:"id"`
	FieldID      uuid.UUID `json:"field_id"`
	IndexType    IndexType `json:"vi_type"`
	SnapshotDate time.Time `json:"snapshot_date"`
	MeanValue    float64   `json:"mean_value"`
	MinValue     float64   `json:"min_value"`
	MaxValue     float64   `json:"max_value"`
	OverlayRef   string    `json:"overlay_data,omitempty"`
	Message      string    `json:"analysis_message,omitempty"`
}

// AnalysisResult reports the outcome of a historical analysis request.
// Zero snapshots means no usable satellite data, which is not an error.
type AnalysisResult struct {
	SnapshotsCreated int    `json:"snapshots_created"`
	UniqueDates      int    `json:"unique_dates"`
	Message          string `json:"message,omitempty"`
}

// TimeSeriesKind selects the aggregation window of a time series request.
type TimeSeriesKind string

// Time series kinds accepted by the backend.
const (
	MonthlyRange TimeSeriesKind = "monthly_range"
	FullYear     TimeSeriesKind = "full_year"
	TenYearAvg   TimeSeriesKind = "ten_year_avg"
)

// Valid reports whether k is a known kind.
func (k TimeSeriesKind) Valid() bool {
	switch k {
	case MonthlyRange, FullYear, TenYearAvg:
		return true
	}
	return false
}

// TimeSeriesPoint is one normalized measurement.
type TimeSeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}
