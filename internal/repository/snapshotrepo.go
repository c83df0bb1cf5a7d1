package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/grovi/internal/model"
)

// SnapshotRepository stores analysed vegetation-index snapshots.
type SnapshotRepository interface {
	// List returns up to limit snapshots of one index, newest first.
	List(ctx context.Context, fieldID uuid.UUID, t model.IndexType, limit int) ([]model.Snapshot, error)
	// DeleteByType removes every snapshot of one index and returns the count.
	DeleteByType(ctx context.Context, fieldID uuid.UUID, t model.IndexType) (int64, error)
	// Insert stores snaps in one transaction, first clearing the index when clearOld is set.
	Insert(ctx context.Context, fieldID uuid.UUID, t model.IndexType, snaps []model.Snapshot, clearOld bool) error
}
