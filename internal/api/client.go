// Package api is the single HTTP adapter every remote call of the client goes through.
// It owns the default headers (including the bearer credential) and the global
// reaction to an expired session.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds every request unless the caller's context is shorter.
const DefaultTimeout = 120 * time.Second

// DefaultBaseURL is the development backend origin.
const DefaultBaseURL = "http://localhost:8000"

// CredentialStore is the persisted credential the adapter erases when the backend rejects it.
type CredentialStore interface {
	Erase() error
}

// Navigator sends the user to the authentication entry point.
type Navigator interface {
	ToLogin()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

// ToLogin calls f.
func (f NavigatorFunc) ToLogin() { f() }

// Client talks to one backend origin.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
	creds   CredentialStore
	nav     Navigator

	// authMu orders credential installation against 401 cleanup; mu guards the fields below.
	authMu sync.Mutex

	mu        sync.Mutex
	headers   http.Header
	listeners []func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (its timeout is kept as is).
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithCredentialStore sets the store erased on 401.
func WithCredentialStore(s CredentialStore) Option { return func(c *Client) { c.creds = s } }

// WithNavigator sets the navigation hook used on 401.
func WithNavigator(n Navigator) Option { return func(c *Client) { c.nav = n } }

// New constructs a Client for baseURL. An empty baseURL means DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		headers: http.Header{},
	}
	c.headers.Set("Accept", "application/json")
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// BaseURL returns the configured origin.
func (c *Client) BaseURL() string { return c.baseURL }

// SetBearer installs the credential on every subsequent request.
func (c *Client) SetBearer(token string) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	c.setHeader(token)
}

// Install runs save, installs token and then runs commit, all after any 401
// cleanup in progress has finished and before another can start. Neither func
// may call back into the client's credential methods.
func (c *Client) Install(token string, save func() error, commit func()) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	var err error
	if save != nil {
		err = save()
	}
	c.setHeader(token)
	if commit != nil {
		commit()
	}
	return err
}

func (c *Client) setHeader(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" {
		c.headers.Del("Authorization")
		return
	}
	c.headers.Set("Authorization", "Bearer "+token)
}

// ClearBearer removes the credential from the default headers.
func (c *Client) ClearBearer() { c.SetBearer("") }

// HasBearer reports whether a credential is installed.
func (c *Client) HasBearer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headers.Get("Authorization") != ""
}

// OnUnauthorized registers fn to run once per rejected credential, after the
// credential is erased and before navigation. fn runs while credential
// installation is held off and must not install or clear a credential itself.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Get issues a GET and decodes the JSON answer into out (if non-nil).
func (c *Client) Get(ctx context.Context, path string, q url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, q, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, q url.Values, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, q, body, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, q url.Values) error {
	return c.Do(ctx, http.MethodDelete, path, q, nil, nil)
}

// Blob is a binary answer.
type Blob struct {
	ContentType string
	Data        []byte
}

// Download fetches a binary resource.
func (c *Client) Download(ctx context.Context, path string, q url.Values) (*Blob, error) {
	resp, err := c.send(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}
	return &Blob{ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}

// Do performs a JSON request. Non-2xx answers come back as *Error.
func (c *Client) Do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	resp, err := c.send(ctx, method, path, q, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// send returns a response only for 2xx; the caller closes the body.
func (c *Client) send(ctx context.Context, method, path string, q url.Values, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path, q), rdr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for k, vs := range c.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	sent := c.headers.Get("Authorization")
	c.mu.Unlock()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("http", zap.String("method", method), zap.String("path", path),
			zap.Duration("dur", time.Since(start)), zap.Error(err))
		return nil, transportError(err)
	}
	c.log.Debug("http", zap.String("method", method), zap.String("path", path),
		zap.Int("status", resp.StatusCode), zap.Duration("dur", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	apiErr := newError(resp.StatusCode, parseDetail(raw))
	if resp.StatusCode == http.StatusUnauthorized {
		c.expire(sent, !silentExpiry(ctx))
	}
	return nil, apiErr
}

// expire runs the session-expiry side effects once per rejected credential. A 401
// for a request that carried no credential, or one that is no longer installed,
// changes nothing. The whole sequence holds authMu, so a credential installed
// meanwhile is neither erased nor reported as expired.
func (c *Client) expire(rejected string, navigate bool) {
	if rejected == "" {
		return
	}
	c.authMu.Lock()
	defer c.authMu.Unlock()

	c.mu.Lock()
	if c.headers.Get("Authorization") != rejected {
		c.mu.Unlock()
		return
	}
	c.headers.Del("Authorization")
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()

	if c.creds != nil {
		if err := c.creds.Erase(); err != nil {
			c.log.Warn("erase credential", zap.Error(err))
		}
	}
	for _, fn := range listeners {
		fn()
	}
	c.log.Info("session expired")
	if navigate && c.nav != nil {
		c.nav.ToLogin()
	}
}

type silentKey struct{}

// SilentExpiry marks requests whose 401 clears the credential without sending the
// user to the login entry point, as when a stored credential is checked at startup.
func SilentExpiry(ctx context.Context) context.Context {
	return context.WithValue(ctx, silentKey{}, true)
}

func silentExpiry(ctx context.Context) bool {
	v, _ := ctx.Value(silentKey{}).(bool)
	return v
}

func (c *Client) url(path string, q url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// ResolveURL turns an image or overlay reference into an absolute URL. Absolute
// http(s) URLs and data URLs are returned unchanged.
func (c *Client) ResolveURL(ref string) string {
	if ref == "" {
		return ""
	}
	for _, p := range []string{"http://", "https://", "data:"} {
		if strings.HasPrefix(ref, p) {
			return ref
		}
	}
	return c.baseURL + "/" + strings.TrimPrefix(ref, "/")
}
