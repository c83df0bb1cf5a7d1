package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
	"github.com/and161185/grovi/internal/repository"
)

// FieldRepo implements repository.FieldRepository.
type FieldRepo struct{ db *DB }

var _ repository.FieldRepository = (*FieldRepo)(nil)

// NewFieldRepo constructs a field repository.
func NewFieldRepo(db *DB) *FieldRepo { return &FieldRepo{db: db} }

const fieldColumns = `id, user_id, name, crop_type, variety, planting_season, planting_date, geometry, area_m2, centroid_lat, centroid_lng, address, created_at`

const dateLayout = "2006-01-02"

type scanner interface{ Scan(dest ...any) error }

func scanField(row scanner) (model.Field, error) {
	var (
		f    model.Field
		pd   *time.Time
		geom []byte
	)
	if err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.CropType, &f.Variety, &f.PlantingSeason, &pd,
		&geom, &f.AreaM2, &f.CentroidLat, &f.CentroidLng, &f.Address, &f.CreatedAt); err != nil {
		return model.Field{}, err
	}
	if pd != nil {
		f.PlantingDate = pd.Format(dateLayout)
	}
	if err := json.Unmarshal(geom, &f.Geometry); err != nil {
		return model.Field{}, fmt.Errorf("field %s geometry: %w", f.ID, err)
	}
	return f, nil
}

// plantingDate converts the wire date into a nullable column value.
func plantingDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("planting_date %q: %w", s, errs.ErrValidation)
	}
	return &d, nil
}

// Create inserts f and fills CreatedAt.
func (r *FieldRepo) Create(ctx context.Context, f *model.Field) error {
	pd, err := plantingDate(f.PlantingDate)
	if err != nil {
		return err
	}
	geom, err := json.Marshal(f.Geometry)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO fields (id, user_id, name, crop_type, variety, planting_season, planting_date, geometry, area_m2, centroid_lat, centroid_lng, address)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING created_at`
	return r.db.Pool.QueryRow(ctx, q, f.ID, f.UserID, f.Name, f.CropType, f.Variety, f.PlantingSeason, pd,
		geom, f.AreaM2, f.CentroidLat, f.CentroidLng, f.Address).Scan(&f.CreatedAt)
}

// ListByUser returns the user's fields, oldest first.
func (r *FieldRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Field, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+fieldColumns+` FROM fields WHERE user_id=$1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Field{}
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Get selects one field of the user.
func (r *FieldRepo) Get(ctx context.Context, userID, id uuid.UUID) (*model.Field, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+fieldColumns+` FROM fields WHERE id=$1 AND user_id=$2`, id, userID)
	f, err := scanField(row)
	if err != nil {
		return nil, rowErr(err)
	}
	return &f, nil
}

// Update writes the descriptive attributes. Geometry, area and centroid never change.
func (r *FieldRepo) Update(ctx context.Context, f *model.Field) error {
	pd, err := plantingDate(f.PlantingDate)
	if err != nil {
		return err
	}
	const q = `
UPDATE fields
SET name=$3, crop_type=$4, variety=$5, planting_season=$6, planting_date=$7, address=$8
WHERE id=$1 AND user_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, f.ID, f.UserID, f.Name, f.CropType, f.Variety, f.PlantingSeason, pd, f.Address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a field; thumbnails and snapshots go with it.
func (r *FieldRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM fields WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
