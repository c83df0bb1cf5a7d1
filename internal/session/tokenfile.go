package session

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// DefaultDir returns $XDG_CONFIG_HOME/grovi or ~/.config/grovi.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "grovi")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "grovi")
}

// FileTokenStore keeps the token in <dir>/token.json.
type FileTokenStore struct {
	dir string
	now func() time.Time
}

// NewFileTokenStore returns a store rooted at dir (DefaultDir when empty).
func NewFileTokenStore(dir string) *FileTokenStore {
	if dir == "" {
		dir = DefaultDir()
	}
	return &FileTokenStore{dir: dir, now: time.Now}
}

// Path returns the token file location.
func (f *FileTokenStore) Path() string { return filepath.Join(f.dir, "token.json") }

// Save writes the token with the expiry read from its exp claim.
func (f *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return err
	}
	tf := tokenFile{AccessToken: token}
	if exp, ok := TokenExpiry(token); ok {
		tf.ExpiresAt = exp
	}
	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path(), b, 0o600)
}

// Load returns the stored token, or ErrNoToken when absent or expired.
func (f *FileTokenStore) Load() (string, error) {
	b, err := os.ReadFile(f.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" {
		return "", ErrNoToken
	}
	if !tf.ExpiresAt.IsZero() && f.now().After(tf.ExpiresAt) {
		return "", ErrNoToken
	}
	return tf.AccessToken, nil
}

// Erase removes the token file. A missing file is not an error.
func (f *FileTokenStore) Erase() error {
	err := os.Remove(f.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// TokenExpiry reads the exp claim without verifying the signature.
func TokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser(jwt.WithoutClaimsValidation()).ParseUnverified(token, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
