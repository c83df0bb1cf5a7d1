package httpapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
	"github.com/and161185/grovi/internal/search"
	"github.com/and161185/grovi/internal/service"
)

const goodToken = "good-token"

type fakeAuth struct {
	mu       sync.Mutex
	uid      uuid.UUID
	lastIP   string
	lastReg  service.RegisterInput
	meMissed bool
}

var _ service.AuthService = (*fakeAuth)(nil)

func (a *fakeAuth) user() model.User {
	return model.User{ID: a.uid, Name: "Alice", Username: "alice", Email: "alice@example.com", IsActive: true}
}

func (a *fakeAuth) Register(_ context.Context, in service.RegisterInput) (model.Tokens, model.User, error) {
	a.mu.Lock()
	a.lastReg = in
	a.mu.Unlock()
	if in.Username == "taken" {
		return model.Tokens{}, model.User{}, fmt.Errorf("username is taken: %w", errs.ErrAlreadyExists)
	}
	return model.Tokens{AccessToken: goodToken}, a.user(), nil
}

func (a *fakeAuth) LoginWithIP(_ context.Context, identifier, password, ip string) (model.Tokens, model.User, error) {
	a.mu.Lock()
	a.lastIP = ip
	a.mu.Unlock()
	switch {
	case identifier == "locked":
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	case identifier == "alice" && password == "secret":
		return model.Tokens{AccessToken: goodToken}, a.user(), nil
	}
	return model.Tokens{}, model.User{}, errs.ErrUnauthorized
}

func (a *fakeAuth) Me(_ context.Context, id uuid.UUID) (model.User, error) {
	if a.meMissed || id != a.uid {
		return model.User{}, errs.ErrNotFound
	}
	return a.user(), nil
}

func (a *fakeAuth) VerifyToken(token string) (uuid.UUID, error) {
	if token != goodToken {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return a.uid, nil
}

type fakeFieldService struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]model.Field
	panics bool
}

var _ service.FieldService = (*fakeFieldService)(nil)

func (f *fakeFieldService) List(_ context.Context, userID uuid.UUID) ([]model.Field, error) {
	if f.panics {
		panic("list exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Field
	for _, fl := range f.byID {
		if fl.UserID == userID {
			out = append(out, fl)
		}
	}
	return out, nil
}

func (f *fakeFieldService) Create(_ context.Context, userID uuid.UUID, in model.FieldInput) (model.Field, error) {
	if in.Name == "" {
		return model.Field{}, fmt.Errorf("field name is required: %w", errs.ErrValidation)
	}
	fl := model.Field{ID: uuid.Must(uuid.NewV4()), UserID: userID, Name: in.Name, Geometry: in.Geometry}
	f.mu.Lock()
	f.byID[fl.ID] = fl
	f.mu.Unlock()
	return fl, nil
}

func (f *fakeFieldService) Get(_ context.Context, userID, id uuid.UUID) (model.Field, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.byID[id]
	if !ok || fl.UserID != userID {
		return model.Field{}, fmt.Errorf("field %s: %w", id, errs.ErrNotFound)
	}
	return fl, nil
}

func (f *fakeFieldService) Update(ctx context.Context, userID, id uuid.UUID, upd model.FieldUpdate) (model.Field, error) {
	fl, err := f.Get(ctx, userID, id)
	if err != nil {
		return model.Field{}, err
	}
	upd.Apply(&fl)
	f.mu.Lock()
	f.byID[id] = fl
	f.mu.Unlock()
	return fl, nil
}

func (f *fakeFieldService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := f.Get(ctx, userID, id); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.byID, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeFieldService) Thumbnail(ctx context.Context, userID, id uuid.UUID) (model.Thumbnail, error) {
	if _, err := f.Get(ctx, userID, id); err != nil {
		return model.Thumbnail{}, err
	}
	return model.Thumbnail{FieldID: id, ImageData: "data:image/png;base64,AAAA"}, nil
}

func (f *fakeFieldService) SaveThumbnail(ctx context.Context, userID, id uuid.UUID, imageData string) (model.Thumbnail, error) {
	if _, err := f.Get(ctx, userID, id); err != nil {
		return model.Thumbnail{}, err
	}
	return model.Thumbnail{FieldID: id, ImageData: imageData}, nil
}

func (f *fakeFieldService) Export(ctx context.Context, userID, id uuid.UUID, format string) (service.Export, error) {
	if _, err := f.Get(ctx, userID, id); err != nil {
		return service.Export{}, err
	}
	if format != "kml" {
		return service.Export{}, fmt.Errorf("%s export is not available on this server: %w", format, errs.ErrUnsupported)
	}
	return service.Export{Filename: "north.kml", ContentType: "application/vnd.google-earth.kml+xml", Data: []byte("<kml/>")}, nil
}

type analysisCall struct {
	Type     model.IndexType
	Kind     model.TimeSeriesKind
	Count    int
	Limit    int
	ClearOld bool
	Start    time.Time
	End      time.Time
}

type fakeAnalysis struct {
	mu   sync.Mutex
	last analysisCall
}

var _ service.AnalysisService = (*fakeAnalysis)(nil)

func (a *fakeAnalysis) record(c analysisCall) {
	a.mu.Lock()
	a.last = c
	a.mu.Unlock()
}

func (a *fakeAnalysis) ListSnapshots(_ context.Context, _, fieldID uuid.UUID, t model.IndexType, limit int) ([]model.Snapshot, error) {
	a.record(analysisCall{Type: t, Limit: limit})
	return []model.Snapshot{{FieldID: fieldID, IndexType: t, MeanValue: 0.5,
		SnapshotDate: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)}}, nil
}

func (a *fakeAnalysis) ClearSnapshots(_ context.Context, _, _ uuid.UUID, t model.IndexType) (int64, error) {
	a.record(analysisCall{Type: t})
	return 3, nil
}

func (a *fakeAnalysis) AnalyzeHistorical(_ context.Context, _, _ uuid.UUID, t model.IndexType, count int, clearOld bool) (model.AnalysisResult, error) {
	a.record(analysisCall{Type: t, Count: count, ClearOld: clearOld})
	if !t.Valid() {
		return model.AnalysisResult{}, fmt.Errorf("unsupported vi_type %q: %w", t, errs.ErrValidation)
	}
	return model.AnalysisResult{SnapshotsCreated: count, UniqueDates: count}, nil
}

func (a *fakeAnalysis) TimeSeries(_ context.Context, _, _ uuid.UUID, t model.IndexType, kind model.TimeSeriesKind, start, end time.Time) ([]model.TimeSeriesPoint, error) {
	a.record(analysisCall{Type: t, Kind: kind, Start: start, End: end})
	return []model.TimeSeriesPoint{
		{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Value: 0.41},
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Value: 0.47},
	}, nil
}

type fakePlaces struct {
	places []model.Place
	err    error
}

var _ search.Geocoder = fakePlaces{}

func (p fakePlaces) Search(context.Context, string) ([]model.Place, error) { return p.places, p.err }
