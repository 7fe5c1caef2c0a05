package repository

import (
	"context"
	"errors"
	"time"

	"careerpath-api/internal/domain"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("already exists")
	// ErrStale is returned when the row changed since it was read.
	ErrStale = errors.New("modified concurrently")
)

// AccountRepository defines persistence operations for Account entities.
type AccountRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	// GetActiveByID only resolves accounts whose active flag is set.
	GetActiveByID(ctx context.Context, id string) (*domain.Account, error)
	GetByPasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.Account, error)
	GetByEmailVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*domain.Account, error)
	// Update writes account only if its Version still matches the stored row,
	// then advances Version. A mismatch yields ErrStale.
	Update(ctx context.Context, account *domain.Account) error
	Delete(ctx context.Context, id string) error
}
