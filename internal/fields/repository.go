// Package fields is the client-side field repository: a cache of confirmed field
// records kept in sync with the backend, plus the current selection.
package fields

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/grovi/internal/api"
	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
	"github.com/and161185/grovi/internal/session"
)

// Default messages when the backend gives no detail.
const (
	MsgLoadFailed   = "could not load fields"
	MsgCreateFailed = "could not create field"
	MsgUpdateFailed = "could not update field"
	MsgDeleteFailed = "could not delete field"
	MsgGetFailed    = "field not found"
	MsgSaveThumb    = "could not save thumbnail"
)

// Session is what the repository needs from the session store.
type Session interface {
	IsAuthenticated() bool
	Subscribe(fn func(session.Transition)) (cancel func())
}

// Repository caches the signed-in user's fields. The cache only ever holds
// records confirmed by the backend.
type Repository struct {
	api  *api.Client
	sess Session
	log  *zap.Logger

	mu      sync.RWMutex
	fields  []model.Field
	current *model.Field
	loading int
	epoch   uint64 // bumped by clear; results of older calls are not cached

	locks keyedMutex
}

// New constructs a Repository.
func New(c *api.Client, sess Session, log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{api: c, sess: sess, log: log}
}

// Attach follows the session: entering the authenticated state triggers Refresh
// (errors are logged), leaving it clears the cache and the current selection.
func (r *Repository) Attach(ctx context.Context) (detach func()) {
	return r.sess.Subscribe(func(tr session.Transition) {
		if tr.To != session.StateAuthenticated {
			r.clear()
			return
		}
		if err := r.Refresh(ctx); err != nil {
			r.log.Warn("refresh fields after sign in", zap.Error(err))
		}
	})
}

func (r *Repository) requireSession() error {
	if r.sess == nil || !r.sess.IsAuthenticated() {
		return errs.ErrNotAuthenticated
	}
	return nil
}

// Refresh replaces the cache with the backend's list.
func (r *Repository) Refresh(ctx context.Context) error {
	if err := r.requireSession(); err != nil {
		return err
	}
	r.setLoading(+1)
	defer r.setLoading(-1)
	gen := r.generation()

	var list []model.Field
	if err := r.api.Get(ctx, "/fields/", nil, &list); err != nil {
		return api.WithFallback(err, MsgLoadFailed)
	}
	if list == nil {
		list = []model.Field{}
	}
	if !r.commit(gen, func() { r.fields = list }) {
		return nil
	}
	r.log.Debug("fields refreshed", zap.Int("count", len(list)))
	return nil
}

// Create posts a new field and appends the confirmed record.
func (r *Repository) Create(ctx context.Context, in model.FieldInput) (model.Field, error) {
	if err := r.requireSession(); err != nil {
		return model.Field{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return model.Field{}, fmt.Errorf("field name is required: %w", errs.ErrValidation)
	}
	if in.Geometry.IsZero() {
		return model.Field{}, fmt.Errorf("field geometry is required: %w", errs.ErrValidation)
	}
	gen := r.generation()
	var f model.Field
	if err := r.api.Post(ctx, "/fields/", nil, in, &f); err != nil {
		return model.Field{}, api.WithFallback(err, MsgCreateFailed)
	}
	r.commit(gen, func() { r.fields = append(r.fields, f) })
	return f, nil
}

// Update sends descriptive changes. Geometry cannot be changed after creation.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, upd model.FieldUpdate) (model.Field, error) {
	if err := r.requireSession(); err != nil {
		return model.Field{}, err
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return model.Field{}, fmt.Errorf("field name cannot be empty: %w", errs.ErrValidation)
	}
	unlock := r.locks.Lock(id)
	defer unlock()

	gen := r.generation()
	var f model.Field
	if err := r.api.Put(ctx, "/fields/"+id.String(), upd, &f); err != nil {
		return model.Field{}, api.WithFallback(err, MsgUpdateFailed)
	}
	r.commit(gen, func() {
		for i := range r.fields {
			if r.fields[i].ID == id {
				r.fields[i] = f
			}
		}
		if r.current != nil && r.current.ID == id {
			cp := f
			r.current = &cp
		}
	})
	return f, nil
}

// Remove deletes a field remotely, then drops it from the cache and the selection.
func (r *Repository) Remove(ctx context.Context, id uuid.UUID) error {
	if err := r.requireSession(); err != nil {
		return err
	}
	unlock := r.locks.Lock(id)
	defer unlock()

	gen := r.generation()
	if err := r.api.Delete(ctx, "/fields/"+id.String(), nil); err != nil {
		return api.WithFallback(err, MsgDeleteFailed)
	}
	r.commit(gen, func() {
		kept := r.fields[:0:0]
		for _, f := range r.fields {
			if f.ID != id {
				kept = append(kept, f)
			}
		}
		r.fields = kept
		if r.current != nil && r.current.ID == id {
			r.current = nil
		}
	})
	return nil
}

// Get fetches one field from the backend, bypassing the cache, and selects it.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (model.Field, error) {
	if err := r.requireSession(); err != nil {
		return model.Field{}, err
	}
	gen := r.generation()
	var f model.Field
	if err := r.api.Get(ctx, "/fields/"+id.String(), nil, &f); err != nil {
		return model.Field{}, api.WithFallback(err, MsgGetFailed)
	}
	r.commit(gen, func() {
		cp := f
		r.current = &cp
	})
	return f, nil
}

type thumbnailBody struct {
	FieldID   uuid.UUID `json:"field_id"`
	ImageData string    `json:"image_data"`
}

// Thumbnail returns the stored preview image data, or "" when there is none or the
// request fails for any reason.
func (r *Repository) Thumbnail(ctx context.Context, id uuid.UUID) string {
	if r.requireSession() != nil {
		return ""
	}
	var body thumbnailBody
	if err := r.api.Get(ctx, "/fields/"+id.String()+"/thumbnail", nil, &body); err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			r.log.Debug("thumbnail", zap.Stringer("field", id), zap.Error(err))
		}
		return ""
	}
	return body.ImageData
}

// SaveThumbnail stores the preview image of a field.
func (r *Repository) SaveThumbnail(ctx context.Context, id uuid.UUID, imageData string) error {
	if err := r.requireSession(); err != nil {
		return err
	}
	if imageData == "" {
		return fmt.Errorf("empty image data: %w", errs.ErrValidation)
	}
	body := thumbnailBody{FieldID: id, ImageData: imageData}
	if err := r.api.Post(ctx, "/fields/"+id.String()+"/thumbnail", nil, body, nil); err != nil {
		r.log.Warn("save thumbnail", zap.Stringer("field", id), zap.Error(err))
		return api.WithFallback(err, MsgSaveThumb)
	}
	return nil
}

// Fields returns a copy of the cached list.
func (r *Repository) Fields() []model.Field {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Field(nil), r.fields...)
}

// Find returns the cached field with the given id.
func (r *Repository) Find(id uuid.UUID) (model.Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.fields {
		if f.ID == id {
			return f, true
		}
	}
	return model.Field{}, false
}

// Current returns the selected field.
func (r *Repository) Current() (model.Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return model.Field{}, false
	}
	return *r.current, true
}

// SetCurrent selects f; nil clears the selection.
func (r *Repository) SetCurrent(f *model.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f == nil {
		r.current = nil
		return
	}
	cp := *f
	r.current = &cp
}

// Loading reports whether a refresh is in flight.
func (r *Repository) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading > 0
}

func (r *Repository) setLoading(delta int) {
	r.mu.Lock()
	r.loading += delta
	r.mu.Unlock()
}

func (r *Repository) clear() {
	r.mu.Lock()
	r.fields = nil
	r.current = nil
	r.epoch++
	r.mu.Unlock()
}

func (r *Repository) generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.epoch
}

// commit applies fn to the cache unless the session was left since gen was taken.
func (r *Repository) commit(gen uint64, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != gen {
		return false
	}
	fn()
	return true
}

// keyedMutex serializes work per field id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(id uuid.UUID) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[uuid.UUID]*refMutex{}
	}
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
