package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "u", ExpiresAt: jwt.NewNumericDate(exp)}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func TestDefaultDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.Equal(t, filepath.Join(dir, "grovi"), DefaultDir())
	require.Equal(t, filepath.Join(dir, "grovi", "token.json"), NewFileTokenStore("").Path())
}

func TestFileTokenStore_RoundTrip(t *testing.T) {
	t.Parallel()
	fs := NewFileTokenStore(filepath.Join(t.TempDir(), "grovi"))

	if _, err := fs.Load(); err != ErrNoToken {
		t.Fatalf("missing file: want ErrNoToken, got %v", err)
	}

	tok := signed(t, time.Now().Add(time.Hour))
	require.NoError(t, fs.Save(tok))
	got, err := fs.Load()
	require.NoError(t, err)
	require.Equal(t, tok, got)

	st, err := os.Stat(fs.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	require.NoError(t, fs.Erase())
	require.NoError(t, fs.Erase(), "erasing twice is fine")
	_, err = fs.Load()
	require.ErrorIs(t, err, ErrNoToken)
}

func TestFileTokenStore_ExpiredAndOpaque(t *testing.T) {
	t.Parallel()
	fs := NewFileTokenStore(t.TempDir())

	require.NoError(t, fs.Save(signed(t, time.Now().Add(-time.Minute))))
	_, err := fs.Load()
	require.ErrorIs(t, err, ErrNoToken)

	// opaque tokens carry no expiry and are kept until the backend rejects them
	require.NoError(t, fs.Save("opaque-token"))
	got, err := fs.Load()
	require.NoError(t, err)
	require.Equal(t, "opaque-token", got)

	require.NoError(t, os.WriteFile(fs.Path(), []byte("{"), 0o600))
	_, err = fs.Load()
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoToken)
}

func TestTokenExpiry(t *testing.T) {
	t.Parallel()
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := TokenExpiry(signed(t, exp))
	require.True(t, ok)
	require.True(t, got.Equal(exp))

	_, ok = TokenExpiry("not-a-jwt")
	require.False(t, ok)
}
