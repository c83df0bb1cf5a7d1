package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/grovi/internal/app"
	"github.com/and161185/grovi/internal/config"
	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/geo"
	"github.com/and161185/grovi/internal/model"
	"github.com/and161185/grovi/internal/tunnel"
)

const token = "tok-alice"

var alice = model.User{ID: uuid.Must(uuid.NewV4()), Name: "Alice", Username: "alice", Email: "alice@example.com", IsActive: true}

const plotJSON = `{"type":"Polygon","coordinates":[[[100,13],[100.01,13],[100.01,13.01],[100,13.01],[100,13]]]}`

// backend is a minimal in-memory REST backend for one user.
type backend struct {
	mu      sync.Mutex
	fields  []model.Field
	thumbs  map[uuid.UUID]string
	updates []map[string]any
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				reply(w, http.StatusUnauthorized, map[string]string{"detail": "could not validate credentials"})
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UsernameOrEmail string `json:"username_or_email"`
			Password        string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.UsernameOrEmail != "alice" || req.Password != "secret" {
			reply(w, http.StatusUnauthorized, map[string]string{"detail": "incorrect username/e-mail or password"})
			return
		}
		reply(w, http.StatusOK, model.AuthResponse{AccessToken: token, TokenType: "bearer", User: alice})
	})
	mux.HandleFunc("GET /auth/me", authed(func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, alice)
	}))
	mux.HandleFunc("GET /fields/{$}", authed(func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		reply(w, http.StatusOK, append([]model.Field{}, b.fields...))
	}))
	mux.HandleFunc("POST /fields/{$}", authed(func(w http.ResponseWriter, r *http.Request) {
		var in model.FieldInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			reply(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid JSON body"})
			return
		}
		f := model.Field{ID: uuid.Must(uuid.NewV4()), UserID: alice.ID, Name: in.Name, CropType: in.CropType, Geometry: in.Geometry}
		b.mu.Lock()
		b.fields = append(b.fields, f)
		b.mu.Unlock()
		reply(w, http.StatusCreated, f)
	}))
	mux.HandleFunc("PUT /fields/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		_ = json.NewDecoder(r.Body).Decode(&raw)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.updates = append(b.updates, raw)
		for i, f := range b.fields {
			if f.ID.String() != r.PathValue("id") {
				continue
			}
			if v, ok := raw["crop_type"].(string); ok {
				b.fields[i].CropType = v
			}
			reply(w, http.StatusOK, b.fields[i])
			return
		}
		reply(w, http.StatusNotFound, map[string]string{"detail": "field not found"})
	}))
	mux.HandleFunc("GET /fields/{id}/thumbnail", authed(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		id := uuid.FromStringOrNil(r.PathValue("id"))
		data, ok := b.thumbs[id]
		if !ok {
			reply(w, http.StatusNotFound, map[string]string{"detail": "thumbnail not found"})
			return
		}
		reply(w, http.StatusOK, map[string]string{"field_id": id.String(), "image_data": data})
	}))
	mux.HandleFunc("GET /vi/timeseries/{id}", authed(func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, map[string]any{"timeseries": []map[string]any{
			{"measurement_date": "2024-01-15T00:00:00", "vi_value": 0.41},
			{"measurement_date": "2024-02-15T00:00:00", "vi_value": 0.52},
		}})
	}))
	return mux
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type cli struct {
	b   *backend
	cfg config.Client
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	b := &backend{thumbs: map[uuid.UUID]string{}}
	ts := httptest.NewServer(b.handler())
	t.Cleanup(ts.Close)
	return &cli{b: b, cfg: config.Client{BaseURL: ts.URL, ConfigDir: t.TempDir(), Timeout: 5 * time.Second}}
}

// exec runs one command with a fresh container, the way each process invocation would.
func (c *cli) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := app.New(c.cfg, zaptest.NewLogger(t))
	defer a.Close()
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := run(ctx, a, args, &out)
	return out.String(), err
}

func (c *cli) login(t *testing.T) {
	t.Helper()
	out, err := c.exec(t, "login", "-u", "alice", "-p", "secret")
	require.NoError(t, err)
	require.Equal(t, "logged in as alice\n", out)
}

func (c *cli) addField(t *testing.T, name string) model.Field {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plot.geojson")
	require.NoError(t, os.WriteFile(path, []byte(plotJSON), 0o600))
	out, err := c.exec(t, "field-add", "-name", name, "-crop", "rice", "-geom", path)
	require.NoError(t, err)
	var f model.Field
	require.NoError(t, json.Unmarshal([]byte(out), &f))
	return f
}

func TestRun_Usage(t *testing.T) {
	c := newCLI(t)

	_, err := c.exec(t)
	require.ErrorIs(t, err, errUsage)

	_, err = c.exec(t, "frobnicate")
	require.ErrorIs(t, err, errUsage)

	_, err = c.exec(t, "field")
	require.ErrorIs(t, err, errUsage)

	_, err = c.exec(t, "login", "-u", "alice")
	require.ErrorIs(t, err, errUsage)

	out, err := c.exec(t, "version")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "grovi "))
}

func TestRun_LoginPersistsAcrossInvocations(t *testing.T) {
	c := newCLI(t)

	_, err := c.exec(t, "whoami")
	require.ErrorIs(t, err, errs.ErrNotAuthenticated)

	_, err = c.exec(t, "login", "-u", "alice", "-p", "wrong")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	c.login(t)

	out, err := c.exec(t, "whoami")
	require.NoError(t, err)
	var u model.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	require.Equal(t, "alice", u.Username)

	out, err = c.exec(t, "logout")
	require.NoError(t, err)
	require.Equal(t, "ok\n", out)

	_, err = c.exec(t, "whoami")
	require.ErrorIs(t, err, errs.ErrNotAuthenticated)
}

func TestRun_FieldsRequireSession(t *testing.T) {
	c := newCLI(t)
	_, err := c.exec(t, "fields")
	require.ErrorIs(t, err, errs.ErrNotAuthenticated)
}

func TestRun_FieldAddAndList(t *testing.T) {
	c := newCLI(t)
	c.login(t)

	f := c.addField(t, "North plot")
	require.Equal(t, "North plot", f.Name)
	require.Equal(t, geo.TypePolygon, f.Geometry.Type)

	c.b.mu.Lock()
	c.b.thumbs[f.ID] = "data:image/png;base64,AAAA"
	c.b.mu.Unlock()
	other := c.addField(t, "South plot")

	out, err := c.exec(t, "fields", "-thumbs")
	require.NoError(t, err)
	var rows []fieldRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	has := map[uuid.UUID]bool{}
	for _, r := range rows {
		require.NotNil(t, r.HasThumbnail)
		has[r.ID] = *r.HasThumbnail
	}
	require.True(t, has[f.ID])
	require.False(t, has[other.ID])

	out, err = c.exec(t, "thumb", "-id", f.ID.String())
	require.NoError(t, err)
	require.Equal(t, "data:image/png;base64,AAAA\n", out)

	_, err = c.exec(t, "thumb", "-id", other.ID.String())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRun_FieldEditSendsOnlyGivenFlags(t *testing.T) {
	c := newCLI(t)
	c.login(t)
	f := c.addField(t, "North plot")

	_, err := c.exec(t, "field-edit", "-id", f.ID.String())
	require.ErrorIs(t, err, errUsage)

	out, err := c.exec(t, "field-edit", "-id", f.ID.String(), "-crop", "")
	require.NoError(t, err)
	var got model.Field
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Empty(t, got.CropType)

	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	require.Len(t, c.b.updates, 1)
	require.Equal(t, map[string]any{"crop_type": ""}, c.b.updates[0])
}

func TestRun_ExportGeoJSON(t *testing.T) {
	c := newCLI(t)
	c.login(t)
	f := c.addField(t, "North plot")

	dir := t.TempDir()
	out, err := c.exec(t, "export", "-id", f.ID.String(), "-format", "GeoJSON", "-o", dir)
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	require.Equal(t, filepath.Join(dir, "north_plot.geojson"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(raw, &fc))
	require.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	require.Equal(t, "North plot", fc.Features[0].Properties["name"])

	_, err = c.exec(t, "export", "-id", f.ID.String(), "-format", "dxf", "-o", dir)
	require.ErrorIs(t, err, errs.ErrUnsupported)
}

func TestRun_TimeSeriesFiles(t *testing.T) {
	c := newCLI(t)
	c.login(t)
	f := c.addField(t, "North plot")
	args := []string{"timeseries", "-id", f.ID.String(), "-kind", "monthly_range", "-year", "2024", "-from", "1", "-to", "2"}

	out, err := c.exec(t, args...)
	require.NoError(t, err)
	var pts []model.TimeSeriesPoint
	require.NoError(t, json.Unmarshal([]byte(out), &pts))
	require.Len(t, pts, 2)
	require.InDelta(t, 0.52, pts[1].Value, 1e-9)

	dir := t.TempDir()
	out, err = c.exec(t, append(args, "-o", dir)...)
	require.NoError(t, err)
	csvPath := strings.TrimSpace(out)
	require.Equal(t, filepath.Join(dir, "north_plot_NDVI_monthly_range.csv"), csvPath)
	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"North plot","NDVI","2024-02-15","02","0.5200"`)

	xlsxPath := filepath.Join(dir, "series.xlsx")
	_, err = c.exec(t, append(args, "-o", xlsxPath)...)
	require.NoError(t, err)
	wb, err := excelize.OpenFile(xlsxPath)
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(wb.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	_, err = c.exec(t, append(args, "-o", filepath.Join(dir, "series.txt"))...)
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = c.exec(t, "timeseries", "-id", f.ID.String(), "-kind", "weekly")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestRun_StatusPrintsFirstEvent(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c := newCLI(t)
	c.cfg.HealthAddr = "passthrough:///bufnet"
	a := app.New(c.cfg, zaptest.NewLogger(t))
	dial := tunnel.WithDialOptions(
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out bytes.Buffer
	require.NoError(t, cmdStatus(ctx, a, nil, &out, dial))

	var ev struct {
		At     string `json:"at"`
		Health struct {
			Status string `json:"status"`
		} `json:"health"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &ev))
	require.Equal(t, "SERVING", ev.Health.Status)

	// nothing listens on a closed listener: the first event is the failure
	srv.Stop()
	out.Reset()
	err := cmdStatus(ctx, a, nil, &out, dial, tunnel.WithDelay(10*time.Millisecond))
	require.ErrorIs(t, err, errs.ErrTransient)
	require.Contains(t, out.String(), `"error"`)
}

func TestReadGeometry(t *testing.T) {
	t.Parallel()
	feature := `{"type":"Feature","properties":{},"geometry":` + plotJSON + `}`
	collection := `{"type":"FeatureCollection","features":[` + feature + `]}`

	for _, raw := range []string{plotJSON, feature, collection} {
		g, err := readGeometry([]byte(raw))
		require.NoError(t, err)
		require.Equal(t, geo.TypePolygon, g.Type)
	}

	for _, raw := range []string{`not json`, `{"type":"FeatureCollection","features":[]}`, `{"type":"Feature"}`} {
		_, err := readGeometry([]byte(raw))
		require.ErrorIs(t, err, errs.ErrValidation, raw)
	}
}

func TestDataURL(t *testing.T) {
	t.Parallel()
	require.Equal(t, "data:image/png;base64,AQID", dataURL("x.PNG", []byte{1, 2, 3}))
	require.Equal(t, "data:image/jpeg;base64,AAAA", dataURL("-", []byte(" data:image/jpeg;base64,AAAA\n")))

	png := []byte("\x89PNG\r\n\x1a\n0000")
	require.True(t, strings.HasPrefix(dataURL("-", png), "data:image/png;base64,"))
}

func TestWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)

	w, err := window("monthly_range", 2024, 2, 4, now)
	require.NoError(t, err)
	require.Equal(t, model.MonthlyRange, w.Kind)
	require.Equal(t, time.February, w.Start.Month())

	w, err = window("full_year", 2023, 0, 0, now)
	require.NoError(t, err)
	require.Equal(t, 2023, w.Start.Year())

	w, err = window("ten_year_avg", 0, 0, 0, now)
	require.NoError(t, err)
	require.Equal(t, model.TenYearAvg, w.Kind)

	_, err = window("monthly_range", 2024, 5, 2, now)
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = window("daily", 2024, 1, 1, now)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestParseID(t *testing.T) {
	t.Parallel()
	_, err := parseID("")
	require.ErrorIs(t, err, errUsage)
	_, err = parseID("nope")
	require.ErrorIs(t, err, errs.ErrValidation)

	id := uuid.Must(uuid.NewV4())
	got, err := parseID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, got)
}
