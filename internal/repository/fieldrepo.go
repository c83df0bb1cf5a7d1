package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/grovi/internal/model"
)

// FieldRepository stores fields. Every call is scoped to the owning user; a field
// of another user is reported as errs.ErrNotFound.
type FieldRepository interface {
	Create(ctx context.Context, f *model.Field) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Field, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*model.Field, error)
	// Update writes the descriptive attributes of f.
	Update(ctx context.Context, f *model.Field) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// ThumbnailRepository stores one preview image per field.
type ThumbnailRepository interface {
	Get(ctx context.Context, fieldID uuid.UUID) (*model.Thumbnail, error)
	Upsert(ctx context.Context, t *model.Thumbnail) error
}
