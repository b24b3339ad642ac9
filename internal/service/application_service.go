package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"card_underwriting/internal/dispatcher"
	"card_underwriting/internal/domain"
	"card_underwriting/internal/repository"
	"card_underwriting/pkg/metrics"

	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateApplication = errors.New("a pending application already exists for this tax id")
	ErrCustomerConflict     = errors.New("email is registered to a different customer")
)

type Dispatcher interface {
	Submit(id string) error
}

type SubmissionMetrics interface {
	RecordSubmission(outcome string)
}

type TaxIDFingerprinter interface {
	Fingerprint(taxID string) string
}

// ApplicationRequest carries fields already checked at the request boundary.
type ApplicationRequest struct {
	FirstName        string
	LastName         string
	Email            string
	PhoneNumber      string
	TaxID            string
	DateOfBirth      time.Time
	Address          domain.Address
	AnnualIncome     decimal.Decimal
	RequestedLimit   decimal.Decimal
	EmploymentStatus string
	CardType         domain.CardType
}

type ApplicationService struct {
	customers     repository.CustomerRepository
	applications  repository.ApplicationRepository
	dispatcher    Dispatcher
	fingerprinter TaxIDFingerprinter
	metrics       SubmissionMetrics
	logger        *slog.Logger
}

func NewApplicationService(
	customers repository.CustomerRepository,
	applications repository.ApplicationRepository,
	dispatcher Dispatcher,
	fingerprinter TaxIDFingerprinter,
	metrics SubmissionMetrics,
	logger *slog.Logger,
) *ApplicationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApplicationService{
		customers:     customers,
		applications:  applications,
		dispatcher:    dispatcher,
		fingerprinter: fingerprinter,
		metrics:       metrics,
		logger:        logger,
	}
}

// Submit stores a PENDING application and hands it to the dispatcher. When
// the dispatcher is saturated the stored application is returned together
// with an error wrapping dispatcher.ErrBackpressure; the row stays PENDING.
func (s *ApplicationService) Submit(ctx context.Context, req ApplicationRequest) (*domain.Application, error) {
	taxRef := s.fingerprinter.Fingerprint(req.TaxID)

	exists, err := s.applications.ExistsByTaxIDAndStatus(ctx, req.TaxID, domain.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending applications: %w", err)
	}
	if exists {
		s.metrics.RecordSubmission(metrics.SubmissionDuplicate)
		return nil, ErrDuplicateApplication
	}

	customer, err := s.resolveCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	app := domain.NewApplication(customer, req.CardType, req.RequestedLimit, req.AnnualIncome).
		WithEmploymentStatus(req.EmploymentStatus)

	if err := s.applications.CreatePending(ctx, app); err != nil {
		if errors.Is(err, repository.ErrPendingExists) {
			s.metrics.RecordSubmission(metrics.SubmissionDuplicate)
			return nil, ErrDuplicateApplication
		}
		return nil, fmt.Errorf("failed to store application: %w", err)
	}

	s.logger.InfoContext(ctx, "Application received",
		slog.String("application_id", app.ID.String()),
		slog.String("application_number", app.ApplicationNumber),
		slog.String("tax_ref", taxRef))

	if err := s.dispatcher.Submit(app.ID.String()); err != nil {
		if errors.Is(err, dispatcher.ErrBackpressure) {
			s.metrics.RecordSubmission(metrics.SubmissionBackpressure)
		}
		s.logger.WarnContext(ctx, "Application stored but not scheduled",
			slog.String("application_id", app.ID.String()),
			slog.String("error", err.Error()))
		return app, fmt.Errorf("schedule application %s: %w", app.ApplicationNumber, err)
	}

	s.metrics.RecordSubmission(metrics.SubmissionAccepted)
	return app, nil
}

// resolveCustomer returns the customer owning req.TaxID, creating a verified
// one on first contact.
func (s *ApplicationService) resolveCustomer(ctx context.Context, req ApplicationRequest) (*domain.Customer, error) {
	customer, err := s.customers.GetByTaxID(ctx, req.TaxID)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}

	owner, err := s.customers.GetByEmail(ctx, req.Email)
	switch {
	case err == nil && owner.TaxID != req.TaxID:
		return nil, ErrCustomerConflict
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to look up customer email: %w", err)
	}

	customer = domain.NewCustomer(req.FirstName, req.LastName, req.Email, req.TaxID)
	customer.PhoneNumber = req.PhoneNumber
	customer.DateOfBirth = req.DateOfBirth
	address := req.Address
	customer.Address = &address
	// Identity verification is assumed to have happened upstream.
	customer.MarkVerified()

	if err := s.customers.Save(ctx, customer); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("failed to save customer: %w", err)
		}
		// A concurrent submission created the customer first.
		winner, lookupErr := s.customers.GetByTaxID(ctx, req.TaxID)
		if lookupErr != nil {
			return nil, ErrCustomerConflict
		}
		return winner, nil
	}

	s.logger.InfoContext(ctx, "Customer created",
		slog.String("customer_id", customer.ID.String()))
	return customer, nil
}

func (s *ApplicationService) GetByApplicationNumber(ctx context.Context, number string) (*domain.Application, error) {
	return s.applications.GetByApplicationNumber(ctx, number)
}

func (s *ApplicationService) ListByCustomerEmail(ctx context.Context, email string) ([]*domain.Application, error) {
	return s.applications.GetByCustomerEmail(ctx, email)
}

func (s *ApplicationService) ListPending(ctx context.Context) ([]*domain.Application, error) {
	return s.applications.GetByStatus(ctx, domain.StatusPending)
}
