package search

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/grovi/internal/api"
	"github.com/and161185/grovi/internal/model"
)

// Results is the /utils/search response body.
type Results struct {
	Results []model.Place `json:"results"`
}

// Service searches through the backend and falls back to a public geocoder.
type Service struct {
	api      *api.Client
	fallback Geocoder
	log      *zap.Logger
}

var _ Geocoder = (*Service)(nil)

// NewService constructs a Service. fallback may be nil.
func NewService(c *api.Client, fallback Geocoder, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{api: c, fallback: fallback, log: log}
}

// Search returns places matching q. A blank query yields nothing without a call;
// zero results are not an error.
func (s *Service) Search(ctx context.Context, q string) ([]model.Place, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	var res Results
	err := s.api.Get(ctx, "/utils/search", url.Values{"q": {q}}, &res)
	if err == nil {
		return res.Results, nil
	}
	if s.fallback == nil {
		return nil, err
	}
	s.log.Debug("backend search failed, using geocoder", zap.Error(err))
	return s.fallback.Search(ctx, q)
}
