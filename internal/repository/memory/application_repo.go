package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"card_underwriting/internal/domain"
	"card_underwriting/internal/repository"

	"github.com/google/uuid"
)

type ApplicationRepository struct {
	mu           sync.RWMutex
	applications map[uuid.UUID]*domain.Application
	numberIndex  map[string]uuid.UUID
	// pendingByTaxID plays the role of a partial unique index on
	// (tax id) where status = PENDING.
	pendingByTaxID map[string]uuid.UUID
}

func NewApplicationRepository() *ApplicationRepository {
	return &ApplicationRepository{
		applications:   make(map[uuid.UUID]*domain.Application),
		numberIndex:    make(map[string]uuid.UUID),
		pendingByTaxID: make(map[string]uuid.UUID),
	}
}

func (r *ApplicationRepository) CreatePending(ctx context.Context, app *domain.Application) error {
	if app.Status != domain.StatusPending {
		return fmt.Errorf("%w: new application must be %s, got %s", domain.ErrInvalidTransition, domain.StatusPending, app.Status)
	}
	taxID := app.TaxID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pendingByTaxID[taxID]; exists {
		return repository.ErrPendingExists
	}
	if _, exists := r.applications[app.ID]; exists {
		return fmt.Errorf("%w: application %s", repository.ErrDuplicate, app.ID)
	}
	if _, exists := r.numberIndex[app.ApplicationNumber]; exists {
		return fmt.Errorf("%w: application number %s", repository.ErrDuplicate, app.ApplicationNumber)
	}

	app.UpdatedAt = time.Now().UTC()
	r.applications[app.ID] = app.Clone()
	r.numberIndex[app.ApplicationNumber] = app.ID
	r.pendingByTaxID[taxID] = app.ID

	return nil
}

func (r *ApplicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, exists := r.applications[id]
	if !exists {
		return nil, fmt.Errorf("%w: application %s", repository.ErrNotFound, id)
	}
	return app.Clone(), nil
}

func (r *ApplicationRepository) GetByApplicationNumber(ctx context.Context, number string) (*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.numberIndex[number]
	if !exists {
		return nil, fmt.Errorf("%w: application %s", repository.ErrNotFound, number)
	}
	return r.applications[id].Clone(), nil
}

func (r *ApplicationRepository) GetByCustomerEmail(ctx context.Context, email string) ([]*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := normalizeEmail(email)
	result := []*domain.Application{}
	for _, app := range r.applications {
		if app.Customer != nil && normalizeEmail(app.Customer.Email) == want {
			result = append(result, app.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (r *ApplicationRepository) GetByStatus(ctx context.Context, status domain.ApplicationStatus) ([]*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*domain.Application{}
	for _, app := range r.applications {
		if app.Status == status {
			result = append(result, app.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (r *ApplicationRepository) ExistsByTaxIDAndStatus(ctx context.Context, taxID string, status domain.ApplicationStatus) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if status == domain.StatusPending {
		_, exists := r.pendingByTaxID[taxID]
		return exists, nil
	}
	for _, app := range r.applications {
		if app.Status == status && app.TaxID() == taxID {
			return true, nil
		}
	}
	return false, nil
}

func (r *ApplicationRepository) Update(ctx context.Context, app *domain.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.applications[app.ID]
	if !exists {
		return fmt.Errorf("%w: application %s", repository.ErrNotFound, app.ID)
	}
	if stored.Status != app.Status && !stored.Status.CanTransitionTo(app.Status) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrStaleTransition, stored.Status, app.Status)
	}

	if stored.Status == domain.StatusPending && app.Status != domain.StatusPending {
		delete(r.pendingByTaxID, stored.TaxID())
	}

	app.UpdatedAt = time.Now().UTC()
	r.applications[app.ID] = app.Clone()

	return nil
}
