// Package app owns the client-side state container: the HTTP adapter, the session,
// the field cache and the read-only services built on them.
package app

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/grovi/internal/api"
	"github.com/and161185/grovi/internal/config"
	"github.com/and161185/grovi/internal/fields"
	"github.com/and161185/grovi/internal/search"
	"github.com/and161185/grovi/internal/session"
	"github.com/and161185/grovi/internal/tunnel"
	"github.com/and161185/grovi/internal/vi"
)

// App is created once per process and handed to every command.
type App struct {
	Config  config.Client
	Log     *zap.Logger
	API     *api.Client
	Tokens  *session.FileTokenStore
	Session *session.Store
	Fields  *fields.Repository
	VI      *vi.Service
	Search  *search.Service

	detach func()
}

// Option configures New.
type Option func(*options)

type options struct {
	nav api.Navigator
	hc  *http.Client
}

// WithNavigator sets what happens when the backend rejects the session.
func WithNavigator(n api.Navigator) Option { return func(o *options) { o.nav = n } }

// WithHTTPClient replaces the HTTP client used for the backend and the geocoder.
func WithHTTPClient(hc *http.Client) Option { return func(o *options) { o.hc = hc } }

// New wires the components. Nothing talks to the network until Start.
func New(cfg config.Client, log *zap.Logger, opts ...Option) *App {
	if log == nil {
		log = zap.NewNop()
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	tokens := session.NewFileTokenStore(cfg.ConfigDir)
	apiOpts := []api.Option{
		api.WithLogger(log.Named("api")),
		api.WithCredentialStore(tokens),
		api.WithNavigator(o.nav),
	}
	if o.hc != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(o.hc))
	} else if cfg.Timeout > 0 {
		apiOpts = append(apiOpts, api.WithTimeout(cfg.Timeout))
	}
	c := api.New(cfg.BaseURL, apiOpts...)

	sess := session.New(c, tokens, log.Named("session"))
	return &App{
		Config:  cfg,
		Log:     log,
		API:     c,
		Tokens:  tokens,
		Session: sess,
		Fields:  fields.New(c, sess, log.Named("fields")),
		VI:      vi.NewService(c, sess, log.Named("vi")),
		Search:  search.NewService(c, search.NewNominatim(cfg.NominatimURL, o.hc), log.Named("search")),
	}
}

// Start attaches the field cache to the session and resolves the stored
// credential. A valid credential loads the field list before Start returns.
func (a *App) Start(ctx context.Context) {
	a.detach = a.Fields.Attach(ctx)
	a.Session.Init(ctx)
}

// Watcher returns a status watcher for the configured health endpoint.
func (a *App) Watcher(opts ...tunnel.Option) *tunnel.Watcher {
	opts = append([]tunnel.Option{tunnel.WithLogger(a.Log.Named("tunnel"))}, opts...)
	return tunnel.New(a.Config.HealthAddr, opts...)
}

// Close detaches the field cache from the session.
func (a *App) Close() {
	if a.detach != nil {
		a.detach()
		a.detach = nil
	}
}
