package repository

import (
	"context"
	"errors"

	"card_underwriting/internal/domain"

	"github.com/google/uuid"
)

type CustomerRepository interface {
	Save(ctx context.Context, customer *domain.Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	GetByTaxID(ctx context.Context, taxID string) (*domain.Customer, error)
	GetByEmail(ctx context.Context, email string) (*domain.Customer, error)
}

type ApplicationRepository interface {
	// CreatePending inserts a PENDING application. It fails with
	// ErrPendingExists when the customer's tax id already has one, atomically
	// with respect to concurrent callers.
	CreatePending(ctx context.Context, app *domain.Application) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	GetByApplicationNumber(ctx context.Context, number string) (*domain.Application, error)
	GetByCustomerEmail(ctx context.Context, email string) ([]*domain.Application, error)
	GetByStatus(ctx context.Context, status domain.ApplicationStatus) ([]*domain.Application, error)
	ExistsByTaxIDAndStatus(ctx context.Context, taxID string, status domain.ApplicationStatus) (bool, error)
	// Update persists status and decision fields. The stored row must be in a
	// status that can move to app.Status, otherwise ErrStaleTransition.
	Update(ctx context.Context, app *domain.Application) error
}

type WatchlistRepository interface {
	Save(ctx context.Context, entry *domain.WatchlistEntry) error
	GetActive(ctx context.Context, list domain.WatchlistType) ([]*domain.WatchlistEntry, error)
	Deactivate(ctx context.Context, id string) error
}

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("duplicate entry")
	ErrPendingExists   = errors.New("pending application exists for tax id")
	ErrStaleTransition = errors.New("stored status does not permit transition")
)
