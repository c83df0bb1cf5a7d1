package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/grovi/internal/model"
)

func TestSnapshotRepo_List(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSnapshotRepo(db)
	fid := uuid.Must(uuid.NewV4())
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM vi_snapshots WHERE field_id=\$1 AND vi_type=\$2 ORDER BY snapshot_date DESC LIMIT \$3`).
		WithArgs(fid, "NDVI", 4).
		WillReturnRows(pgxmock.NewRows([]string{"id", "field_id", "vi_type", "snapshot_date", "mean_value", "min_value", "max_value", "overlay_data", "analysis_message"}).
			AddRow(uuid.Must(uuid.NewV4()), fid, "NDVI", d, 0.6, 0.4, 0.8, "", "ok"))
	snaps, err := r.List(context.Background(), fid, model.NDVI, 4)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, model.NDVI, snaps[0].IndexType)
	require.Equal(t, 0.6, snaps[0].MeanValue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepo_DeleteByType(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	fid := uuid.Must(uuid.NewV4())
	mock.ExpectExec(`DELETE FROM vi_snapshots WHERE field_id=\$1 AND vi_type=\$2`).WithArgs(fid, "EVI").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	n, err := NewSnapshotRepo(db).DeleteByType(context.Background(), fid, model.EVI)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

func TestSnapshotRepo_InsertReplacesInOneTx(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSnapshotRepo(db)
	fid := uuid.Must(uuid.NewV4())
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	snaps := []model.Snapshot{
		{ID: uuid.Must(uuid.NewV4()), SnapshotDate: d, MeanValue: 0.5, MinValue: 0.3, MaxValue: 0.7},
		{ID: uuid.Must(uuid.NewV4()), SnapshotDate: d.AddDate(0, 0, -5), MeanValue: 0.4, MinValue: 0.2, MaxValue: 0.6},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM vi_snapshots`).WithArgs(fid, "NDVI").WillReturnResult(pgxmock.NewResult("DELETE", 2))
	for _, s := range snaps {
		mock.ExpectExec(`INSERT INTO vi_snapshots`).
			WithArgs(s.ID, fid, "NDVI", s.SnapshotDate, s.MeanValue, s.MinValue, s.MaxValue, "", "").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()
	require.NoError(t, r.Insert(context.Background(), fid, model.NDVI, snaps, true))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO vi_snapshots`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()
	require.Error(t, r.Insert(context.Background(), fid, model.NDVI, snaps[:1], false))
	require.NoError(t, mock.ExpectationsWereMet())
}
