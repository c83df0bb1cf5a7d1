package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of a pgx pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG keeps counters in the auth_limiter table.
type PG struct {
	q   Querier
	p   Policy
	now func() time.Time
}

var _ Limiter = (*PG)(nil)

// NewPG constructs a PostgreSQL-backed limiter. Zero policy members take DefaultPolicy values.
func NewPG(q Querier, p Policy) *PG {
	if p.Window <= 0 {
		p.Window = DefaultPolicy.Window
	}
	if p.MaxFails <= 0 {
		p.MaxFails = DefaultPolicy.MaxFails
	}
	if p.BlockFor <= 0 {
		p.BlockFor = DefaultPolicy.BlockFor
	}
	return &PG{q: q, p: p, now: time.Now}
}

// Allow implements Limiter.
func (l *PG) Allow(ctx context.Context, identifier string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM auth_limiter WHERE identifier=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.q.QueryRow(ctx, q, Key(identifier), ipHash).Scan(&blockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, err
	}
	if left := blockedUntil.Sub(l.now()); left > 0 {
		return false, left, nil
	}
	return true, 0, nil
}

// Success implements Limiter.
func (l *PG) Success(ctx context.Context, identifier string, ipHash []byte) error {
	const q = `
INSERT INTO auth_limiter (identifier, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 0, 'epoch', now())
ON CONFLICT (identifier, ip_hash)
DO UPDATE SET fail_count = 0, blocked_until = 'epoch', updated_at = now()`
	_, err := l.q.Exec(ctx, q, Key(identifier), ipHash)
	return err
}

// Failure implements Limiter. A failure outside the window restarts the count.
func (l *PG) Failure(ctx context.Context, identifier string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO auth_limiter (identifier, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, 'epoch', now())
ON CONFLICT (identifier, ip_hash) DO UPDATE
SET fail_count = CASE WHEN now() - auth_limiter.updated_at > $3::interval THEN 1 ELSE auth_limiter.fail_count + 1 END,
    updated_at = now()
RETURNING fail_count`
	key := Key(identifier)
	var fails int
	if err := l.q.QueryRow(ctx, q, key, ipHash, l.p.Window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.p.MaxFails {
		return false, 0, nil
	}
	const upd = `UPDATE auth_limiter SET blocked_until = $3 WHERE identifier = $1 AND ip_hash = $2`
	if _, err := l.q.Exec(ctx, upd, key, ipHash, l.now().Add(l.p.BlockFor)); err != nil {
		return false, 0, err
	}
	return true, l.p.BlockFor, nil
}
