package httpapi

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/grovi/internal/model"
)

type thumbnailBody struct {
	FieldID   uuid.UUID `json:"field_id"`
	ImageData string    `json:"image_data"`
}

func (s *Server) invalidID(w http.ResponseWriter) {
	writeDetail(w, http.StatusUnprocessableEntity, "invalid field id")
}

func (s *Server) listFields(w http.ResponseWriter, r *http.Request) {
	list, err := s.fields.List(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.Field{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createField(w http.ResponseWriter, r *http.Request) {
	var in model.FieldInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	f, err := s.fields.Create(r.Context(), userID(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) getField(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.invalidID(w)
		return
	}
	f, err := s.fields.Get(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) updateField(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.invalidID(w)
		return
	}
	var upd model.FieldUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		s.fail(w, r, err)
		return
	}
	f, err := s.fields.Update(r.Context(), userID(r), id, upd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) deleteField(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.invalidID(w)
		return
	}
	if err := s.fields.Delete(r.Context(), userID(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.invalidID(w)
		return
	}
	t, err := s.fields.Thumbnail(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thumbnailBody{FieldID: t.FieldID, ImageData: t.ImageData})
}

func (s *Server) saveThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.invalidID(w)
		return
	}
	var body thumbnailBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.fields.SaveThumbnail(r.Context(), userID(r), id, body.ImageData)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thumbnailBody{FieldID: t.FieldID, ImageData: t.ImageData})
}

func (s *Server) exportField(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.invalidID(w)
		return
	}
	e, err := s.fields.Export(r.Context(), userID(r), id, chi.URLParam(r, "format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", e.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": e.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(e.Data)
}
