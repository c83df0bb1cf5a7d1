package httpapi

import (
	"net/http"
	"strings"

	"github.com/and161185/grovi/internal/model"
	"github.com/and161185/grovi/internal/search"
)

func (s *Server) searchPlaces(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	out := search.Results{Results: []model.Place{}}
	if q == "" || s.places == nil {
		writeJSON(w, http.StatusOK, out)
		return
	}
	places, err := s.places.Search(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if places != nil {
		out.Results = places
	}
	writeJSON(w, http.StatusOK, out)
}
