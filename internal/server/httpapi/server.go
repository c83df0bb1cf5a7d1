// Package httpapi exposes the Grovi REST API on chi.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/grovi/internal/search"
	"github.com/and161185/grovi/internal/service"
)

// Server wires services into HTTP handlers.
type Server struct {
	auth     service.AuthService
	fields   service.FieldService
	analysis service.AnalysisService
	places   search.Geocoder
	log      *zap.Logger
}

// New constructs a Server. places may be nil, in which case search answers no results.
func New(auth service.AuthService, fields service.FieldService, analysis service.AnalysisService, places search.Geocoder, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, fields: fields, analysis: analysis, places: places, log: log}
}

// Handler builds the router. origins lists allowed CORS origins; "*" allows any.
func (s *Server) Handler(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(Logging(s.log))
	r.Use(Recover(s.log))
	r.Use(cors.Handler(corsOptions(origins)))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Post("/auth/login", s.login)
	r.Post("/auth/register", s.register)
	r.Get("/utils/search", s.searchPlaces)

	r.Group(func(r chi.Router) {
		r.Use(Bearer(s.auth.VerifyToken))

		r.Get("/auth/me", s.me)

		r.Route("/fields", func(r chi.Router) {
			r.Get("/", s.listFields)
			r.Post("/", s.createField)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getField)
				r.Put("/", s.updateField)
				r.Delete("/", s.deleteField)
				r.Get("/thumbnail", s.getThumbnail)
				r.Post("/thumbnail", s.saveThumbnail)
				r.Get("/export/{format}", s.exportField)
			})
		})

		r.Get("/vi/timeseries/{id}", s.timeSeries)
		r.Get("/vi-analysis/snapshots/{id}", s.listSnapshots)
		r.Delete("/vi-analysis/snapshots/{id}", s.clearSnapshots)
		r.Post("/vi-analysis/{id}/analyze-historical", s.analyzeHistorical)
	})
	return r
}

func corsOptions(origins []string) cors.Options {
	var allowed []string
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
