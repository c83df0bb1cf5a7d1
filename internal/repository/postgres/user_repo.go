package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/model"
	"github.com/and161185/grovi/internal/repository"
)

// UserRepo implements repository.UserRepository.
type UserRepo struct{ db *DB }

var _ repository.UserRepository = (*UserRepo)(nil)

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, name, username, email, date_of_birth, is_active, pwd_hash, salt_auth, created_at`

// Create inserts a new user row and fills CreatedAt.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, name, username, email, date_of_birth, is_active, pwd_hash, salt_auth)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, u.ID, u.Name, u.Username, u.Email, u.DateOfBirth, u.IsActive, u.PwdHash, u.SaltAuth).
		Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// GetByLogin selects a user by username or email.
func (r *UserRepo) GetByLogin(ctx context.Context, identifier string) (*model.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username)=lower($1) OR lower(email)=lower($1)`, identifier)
}

func (r *UserRepo) one(ctx context.Context, q string, arg any) (*model.User, error) {
	var u model.User
	err := r.db.Pool.QueryRow(ctx, q, arg).
		Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.DateOfBirth, &u.IsActive, &u.PwdHash, &u.SaltAuth, &u.CreatedAt)
	if err != nil {
		return nil, rowErr(err)
	}
	return &u, nil
}
