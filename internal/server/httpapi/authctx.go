package httpapi

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid/v5"
)

type ctxKey string

const userIDKey ctxKey = "grovi.userID"

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromCtx fetches the user id stored by the bearer middleware.
func UserIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// userID is used by handlers mounted behind Bearer, where the id is always present.
func userID(r *http.Request) uuid.UUID {
	id, _ := UserIDFromCtx(r.Context())
	return id
}
