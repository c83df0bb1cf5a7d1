package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/grovi/internal/model"
	"github.com/and161185/grovi/internal/repository"
)

// ThumbnailRepo implements repository.ThumbnailRepository.
type ThumbnailRepo struct{ db *DB }

var _ repository.ThumbnailRepository = (*ThumbnailRepo)(nil)

// NewThumbnailRepo constructs a thumbnail repository.
func NewThumbnailRepo(db *DB) *ThumbnailRepo { return &ThumbnailRepo{db: db} }

// Get selects the thumbnail of a field.
func (r *ThumbnailRepo) Get(ctx context.Context, fieldID uuid.UUID) (*model.Thumbnail, error) {
	var t model.Thumbnail
	err := r.db.Pool.QueryRow(ctx, `SELECT field_id, image_data, updated_at FROM field_thumbnails WHERE field_id=$1`, fieldID).
		Scan(&t.FieldID, &t.ImageData, &t.UpdatedAt)
	if err != nil {
		return nil, rowErr(err)
	}
	return &t, nil
}

// Upsert replaces the thumbnail of a field and fills UpdatedAt.
func (r *ThumbnailRepo) Upsert(ctx context.Context, t *model.Thumbnail) error {
	const q = `
INSERT INTO field_thumbnails (field_id, image_data, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (field_id) DO UPDATE SET image_data = EXCLUDED.image_data, updated_at = now()
RETURNING updated_at`
	return r.db.Pool.QueryRow(ctx, q, t.FieldID, t.ImageData).Scan(&t.UpdatedAt)
}
