package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"card_underwriting/internal/domain"
	"card_underwriting/internal/repository"

	"github.com/google/uuid"
)

type CustomerRepository struct {
	mu         sync.RWMutex
	customers  map[uuid.UUID]*domain.Customer
	taxIndex   map[string]uuid.UUID
	emailIndex map[string]uuid.UUID
}

func NewCustomerRepository() *CustomerRepository {
	return &CustomerRepository{
		customers:  make(map[uuid.UUID]*domain.Customer),
		taxIndex:   make(map[string]uuid.UUID),
		emailIndex: make(map[string]uuid.UUID),
	}
}

func (r *CustomerRepository) Save(ctx context.Context, customer *domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.customers[customer.ID]; exists {
		return fmt.Errorf("%w: customer %s", repository.ErrDuplicate, customer.ID)
	}
	if _, exists := r.taxIndex[customer.TaxID]; exists {
		return fmt.Errorf("%w: customer tax id", repository.ErrDuplicate)
	}
	email := normalizeEmail(customer.Email)
	if _, exists := r.emailIndex[email]; exists {
		return fmt.Errorf("%w: customer email %s", repository.ErrDuplicate, customer.Email)
	}

	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	cp := *customer
	r.customers[customer.ID] = &cp
	r.taxIndex[customer.TaxID] = customer.ID
	r.emailIndex[email] = customer.ID

	return nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	customer, exists := r.customers[id]
	if !exists {
		return nil, fmt.Errorf("%w: customer %s", repository.ErrNotFound, id)
	}
	cp := *customer
	return &cp, nil
}

func (r *CustomerRepository) GetByTaxID(ctx context.Context, taxID string) (*domain.Customer, error) {
	r.mu.RLock()
	id, exists := r.taxIndex[taxID]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: customer tax id", repository.ErrNotFound)
	}
	return r.GetByID(ctx, id)
}

func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	r.mu.RLock()
	id, exists := r.emailIndex[normalizeEmail(email)]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: customer email %s", repository.ErrNotFound, email)
	}
	return r.GetByID(ctx, id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
