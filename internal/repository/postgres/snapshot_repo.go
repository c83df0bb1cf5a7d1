package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/grovi/internal/model"
	"github.com/and161185/grovi/internal/repository"
)

// SnapshotRepo implements repository.SnapshotRepository.
type SnapshotRepo struct{ db *DB }

var _ repository.SnapshotRepository = (*SnapshotRepo)(nil)

// NewSnapshotRepo constructs a snapshot repository.
func NewSnapshotRepo(db *DB) *SnapshotRepo { return &SnapshotRepo{db: db} }

// List returns up to limit snapshots of index t, newest first.
func (r *SnapshotRepo) List(ctx context.Context, fieldID uuid.UUID, t model.IndexType, limit int) ([]model.Snapshot, error) {
	const q = `
SELECT id, field_id, vi_type, snapshot_date, mean_value, min_value, max_value, overlay_data, analysis_message
FROM vi_snapshots
WHERE field_id=$1 AND vi_type=$2
ORDER BY snapshot_date DESC
LIMIT $3`
	rows, err := r.db.Pool.Query(ctx, q, fieldID, string(t), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Snapshot{}
	for rows.Next() {
		var (
			s  model.Snapshot
			vt string
		)
		if err := rows.Scan(&s.ID, &s.FieldID, &vt, &s.SnapshotDate, &s.MeanValue, &s.MinValue, &s.MaxValue, &s.OverlayRef, &s.Message); err != nil {
			return nil, err
		}
		s.IndexType = model.IndexType(vt)
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteByType removes every snapshot of index t.
func (r *SnapshotRepo) DeleteByType(ctx context.Context, fieldID uuid.UUID, t model.IndexType) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM vi_snapshots WHERE field_id=$1 AND vi_type=$2`, fieldID, string(t))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Insert stores snaps atomically, replacing older snapshots of t when clearOld is set.
func (r *SnapshotRepo) Insert(ctx context.Context, fieldID uuid.UUID, t model.IndexType, snaps []model.Snapshot, clearOld bool) error {
	const del = `DELETE FROM vi_snapshots WHERE field_id=$1 AND vi_type=$2`
	const ins = `
INSERT INTO vi_snapshots (id, field_id, vi_type, snapshot_date, mean_value, min_value, max_value, overlay_data, analysis_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if clearOld {
			if _, err := tx.Exec(ctx, del, fieldID, string(t)); err != nil {
				return err
			}
		}
		for _, s := range snaps {
			if _, err := tx.Exec(ctx, ins, s.ID, fieldID, string(t), s.SnapshotDate, s.MeanValue, s.MinValue, s.MaxValue, s.OverlayRef, s.Message); err != nil {
				return err
			}
		}
		return nil
	})
}
