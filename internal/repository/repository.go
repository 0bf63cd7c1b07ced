// Package repository declares the storage interfaces the service layer depends on.
// internal/repository/sqlite provides the concrete implementation.
package repository

import (
	"context"
	"time"

	"github.com/sakif/product-catalog/internal/model"
)

type UserRepository interface {
	// CreateUser inserts the user and fills in ID and CreatedAt. A UNIQUE
	// violation on email is reported as apperror.ErrDuplicateEmail.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id int64) (*model.Product, error)
	// ListByOwner returns only the rows whose owner_id matches, oldest first.
	ListByOwner(ctx context.Context, ownerID int64) ([]model.Product, error)
	// Update overwrites image, name and description. owner_id is never written.
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id int64) error
}

// SessionRepository persists server-side session bindings.
// Get returns apperror.ErrNotFound for unknown ids.
type SessionRepository interface {
	CreateSession(ctx context.Context, sess *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
