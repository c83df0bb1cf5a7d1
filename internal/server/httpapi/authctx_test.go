package httpapi

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestUserIDFromCtx(t *testing.T) {
	t.Parallel()

	_, ok := UserIDFromCtx(context.Background())
	require.False(t, ok)

	want := uuid.Must(uuid.NewV4())
	got, ok := UserIDFromCtx(WithUserID(context.Background(), want))
	require.True(t, ok)
	require.Equal(t, want, got)

	_, ok = UserIDFromCtx(WithUserID(context.Background(), uuid.Nil))
	require.False(t, ok, "nil id is not a user")

	bad := context.WithValue(context.Background(), userIDKey, want.String())
	_, ok = UserIDFromCtx(bad)
	require.False(t, ok, "wrong typed value")
}
