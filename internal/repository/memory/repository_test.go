package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"card_underwriting/internal/domain"
	"card_underwriting/internal/repository"

	"github.com/shopspring/decimal"
)

func newApplication(taxID, email string) *domain.Application {
	c := domain.NewCustomer("Jane", "Doe", email, taxID)
	return domain.NewApplication(c, domain.CardGold, decimal.NewFromInt(5000), decimal.NewFromInt(60000))
}

func TestCustomerRepository_SaveAndLookups(t *testing.T) {
	repo := NewCustomerRepository()
	c := domain.NewCustomer("Jane", "Doe", "Jane@Example.com", "123-45-6789")

	if err := repo.Save(context.Background(), c); err != nil {
		t.Fatalf("unexpected error on Save: %v", err)
	}
	byTax, err := repo.GetByTaxID(context.Background(), "123-45-6789")
	if err != nil {
		t.Fatalf("unexpected error on GetByTaxID: %v", err)
	}
	byEmail, err := repo.GetByEmail(context.Background(), "jane@example.com")

	if err != nil {
		t.Fatalf("unexpected error on GetByEmail: %v", err)
	}
	if byTax.ID != c.ID || byEmail.ID != c.ID {
		t.Errorf("expected customer %s from both lookups, got %s and %s", c.ID, byTax.ID, byEmail.ID)
	}
}

func TestCustomerRepository_UniqueTaxIDAndEmail(t *testing.T) {
	repo := NewCustomerRepository()
	_ = repo.Save(context.Background(), domain.NewCustomer("Jane", "Doe", "jane@example.com", "123-45-6789"))

	errTax := repo.Save(context.Background(), domain.NewCustomer("John", "Doe", "john@example.com", "123-45-6789"))
	errEmail := repo.Save(context.Background(), domain.NewCustomer("John", "Doe", "JANE@example.com", "987-65-4321"))

	if !errors.Is(errTax, repository.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for tax id, got %v", errTax)
	}
	if !errors.Is(errEmail, repository.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for email, got %v", errEmail)
	}
}

func TestApplicationRepository_CreatePendingRejectsSecondPending(t *testing.T) {
	repo := NewApplicationRepository()
	first := newApplication("123-45-6789", "jane@example.com")
	_ = repo.CreatePending(context.Background(), first)

	err := repo.CreatePending(context.Background(), newApplication("123-45-6789", "jane@example.com"))

	if !errors.Is(err, repository.ErrPendingExists) {
		t.Fatalf("expected ErrPendingExists, got %v", err)
	}
}

func TestApplicationRepository_PendingSlotFreedAfterReview(t *testing.T) {
	repo := NewApplicationRepository()
	first := newApplication("123-45-6789", "jane@example.com")
	_ = repo.CreatePending(context.Background(), first)

	_ = first.StartReview(time.Now())
	if err := repo.Update(context.Background(), first); err != nil {
		t.Fatalf("unexpected error on Update: %v", err)
	}
	err := repo.CreatePending(context.Background(), newApplication("123-45-6789", "jane@example.com"))

	if err != nil {
		t.Fatalf("expected second application to be admitted once first left PENDING, got %v", err)
	}
}

func TestApplicationRepository_ConcurrentCreatePendingAdmitsOne(t *testing.T) {
	repo := NewApplicationRepository()
	var admitted atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.CreatePending(context.Background(), newApplication("123-45-6789", "jane@example.com")); err == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 1 {
		t.Fatalf("expected exactly one admitted application, got %d", admitted.Load())
	}
	pending, _ := repo.GetByStatus(context.Background(), domain.StatusPending)
	if len(pending) != 1 {
		t.Errorf("expected one pending application, got %d", len(pending))
	}
}

func TestApplicationRepository_UpdateRefusesStaleTransition(t *testing.T) {
	repo := NewApplicationRepository()
	app := newApplication("123-45-6789", "jane@example.com")
	_ = repo.CreatePending(context.Background(), app)
	_ = app.StartReview(time.Now())
	_ = repo.Update(context.Background(), app)

	cancelled := app.Clone()
	_ = cancelled.Cancel(time.Now())
	_ = repo.Update(context.Background(), cancelled)

	_ = app.Reject("late", time.Now())
	err := repo.Update(context.Background(), app)

	if !errors.Is(err, repository.ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
	got, _ := repo.GetByID(context.Background(), app.ID)
	if got.Status != domain.StatusCancelled {
		t.Errorf("expected stored status CANCELLED, got %s", got.Status)
	}
}

func TestApplicationRepository_ReturnsCopies(t *testing.T) {
	repo := NewApplicationRepository()
	app := newApplication("123-45-6789", "jane@example.com")
	_ = repo.CreatePending(context.Background(), app)

	got, _ := repo.GetByApplicationNumber(context.Background(), app.ApplicationNumber)
	got.Status = domain.StatusApproved
	again, _ := repo.GetByID(context.Background(), app.ID)

	if again.Status != domain.StatusPending {
		t.Errorf("stored application mutated through returned pointer: %s", again.Status)
	}
}

func TestApplicationRepository_GetByCustomerEmail(t *testing.T) {
	repo := NewApplicationRepository()
	a := newApplication("123-45-6789", "jane@example.com")
	b := newApplication("987-65-4321", "john@example.com")
	_ = repo.CreatePending(context.Background(), a)
	_ = repo.CreatePending(context.Background(), b)

	got, err := repo.GetByCustomerEmail(context.Background(), "JANE@example.com")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("expected only jane's application, got %+v", got)
	}
}

func TestWatchlistRepository_SeedAndDeactivate(t *testing.T) {
	repo := NewWatchlistRepository()
	_ = repo.Seed(context.Background(), domain.WatchlistSanctions, []string{"A", "B"})
	_ = repo.Seed(context.Background(), domain.WatchlistPEP, []string{"C"})

	if err := repo.Deactivate(context.Background(), "sanctions-1"); err != nil {
		t.Fatalf("unexpected error on Deactivate: %v", err)
	}
	active, _ := repo.GetActive(context.Background(), domain.WatchlistSanctions)

	if len(active) != 1 || active[0].Name != "B" {
		t.Errorf("expected only entry B active, got %+v", active)
	}
}
