// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/grovi/internal/model"
)

// UserRepository stores accounts.
type UserRepository interface {
	// Create inserts a new user; a taken username or email yields errs.ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByLogin loads a user whose username or email matches identifier, case-insensitively.
	GetByLogin(ctx context.Context, identifier string) (*model.User, error)
}
