package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"card_underwriting/internal/domain"
	"card_underwriting/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const selectApplication = `
	SELECT a.id, a.application_number, a.status, a.customer_id,
	       a.requested_limit, a.annual_income, a.employment_status, a.card_type,
	       a.credit_score, a.risk_score, a.approved_limit, a.decision_reason,
	       a.created_at, a.updated_at, a.decided_at,
	       c.id, c.first_name, c.last_name, c.email, c.phone_number, c.tax_id, c.date_of_birth,
	       c.street_address, c.city, c.state, c.zip_code, c.country,
	       c.identity_verified, c.kyc_status, c.created_at, c.updated_at
	FROM credit_card_applications a
	JOIN customers c ON c.id = a.customer_id
`

var allStatuses = []domain.ApplicationStatus{
	domain.StatusPending,
	domain.StatusInReview,
	domain.StatusApproved,
	domain.StatusRejected,
	domain.StatusCancelled,
}

type ApplicationRepository struct {
	db *pgxpool.Pool
}

func NewApplicationRepository(db *pgxpool.Pool) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

func (r *ApplicationRepository) CreatePending(ctx context.Context, app *domain.Application) error {
	if app.Status != domain.StatusPending {
		return fmt.Errorf("%w: new application must be %s, got %s", domain.ErrInvalidTransition, domain.StatusPending, app.Status)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO credit_card_applications (
			id, application_number, status, customer_id, tax_id,
			requested_limit, annual_income, employment_status, card_type,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	app.UpdatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx, query,
		app.ID, app.ApplicationNumber, string(app.Status), app.CustomerID, app.TaxID(),
		app.RequestedLimit, app.AnnualIncome, app.EmploymentStatus, string(app.CardType),
		app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		mapped := mapWriteError(err)
		if errors.Is(mapped, repository.ErrPendingExists) {
			return mapped
		}
		return fmt.Errorf("insert application: %w", mapped)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit application: %w", mapWriteError(err))
	}
	return nil
}

func (r *ApplicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	return r.getOne(ctx, selectApplication+" WHERE a.id = $1", id)
}

func (r *ApplicationRepository) GetByApplicationNumber(ctx context.Context, number string) (*domain.Application, error) {
	return r.getOne(ctx, selectApplication+" WHERE a.application_number = $1", number)
}

func (r *ApplicationRepository) GetByCustomerEmail(ctx context.Context, email string) ([]*domain.Application, error) {
	return r.list(ctx, selectApplication+" WHERE lower(c.email) = lower($1) ORDER BY a.created_at DESC", email)
}

func (r *ApplicationRepository) GetByStatus(ctx context.Context, status domain.ApplicationStatus) ([]*domain.Application, error) {
	return r.list(ctx, selectApplication+" WHERE a.status = $1 ORDER BY a.created_at ASC", string(status))
}

func (r *ApplicationRepository) ExistsByTaxIDAndStatus(ctx context.Context, taxID string, status domain.ApplicationStatus) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM credit_card_applications WHERE tax_id = $1 AND status = $2)`,
		taxID, string(status),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check application exists: %w", err)
	}
	return exists, nil
}

// Update writes the decision fields guarded by the stored status, so a row that
// was cancelled concurrently is never overwritten.
func (r *ApplicationRepository) Update(ctx context.Context, app *domain.Application) error {
	query := `
		UPDATE credit_card_applications
		SET status = $2, credit_score = $3, risk_score = $4, approved_limit = $5,
		    decision_reason = $6, decided_at = $7, updated_at = $8
		WHERE id = $1 AND status = ANY($9)
	`
	var risk, limit decimal.NullDecimal
	if app.RiskScore != nil {
		risk = decimal.NewNullDecimal(*app.RiskScore)
	}
	if app.ApprovedLimit != nil {
		limit = decimal.NewNullDecimal(*app.ApprovedLimit)
	}
	var reason *string
	if app.DecisionReason != "" {
		reason = &app.DecisionReason
	}

	app.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, query,
		app.ID, string(app.Status), app.CreditScore, risk, limit,
		reason, app.DecidedAt, app.UpdatedAt, predecessors(app.Status),
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var stored string
	err = r.db.QueryRow(ctx, `SELECT status FROM credit_card_applications WHERE id = $1`, app.ID).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: application %s", repository.ErrNotFound, app.ID)
	}
	if err != nil {
		return fmt.Errorf("read application status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", repository.ErrStaleTransition, stored, app.Status)
}

// predecessors lists the stored statuses from which a row may be written with
// next: the status itself plus every status that can transition into it.
func predecessors(next domain.ApplicationStatus) []string {
	result := []string{string(next)}
	for _, s := range allStatuses {
		if s.CanTransitionTo(next) {
			result = append(result, string(s))
		}
	}
	return result
}

func (r *ApplicationRepository) getOne(ctx context.Context, query string, arg any) (*domain.Application, error) {
	app, err := scanApplication(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: application", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("read application: %w", err)
	}
	return app, nil
}

func (r *ApplicationRepository) list(ctx context.Context, query string, arg any) ([]*domain.Application, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	result := []*domain.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		result = append(result, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return result, nil
}

func scanApplication(row pgx.Row) (*domain.Application, error) {
	var (
		a                                 domain.Application
		c                                 domain.Customer
		status, cardType, kyc             string
		risk, limit                       decimal.NullDecimal
		reason                            *string
		updatedAt, custUpdatedAt, dob     *time.Time
		street, city, state, zip, country *string
	)
	err := row.Scan(
		&a.ID, &a.ApplicationNumber, &status, &a.CustomerID,
		&a.RequestedLimit, &a.AnnualIncome, &a.EmploymentStatus, &cardType,
		&a.CreditScore, &risk, &limit, &reason,
		&a.CreatedAt, &updatedAt, &a.DecidedAt,
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber, &c.TaxID, &dob,
		&street, &city, &state, &zip, &country,
		&c.IdentityVerified, &kyc, &c.CreatedAt, &custUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = domain.ApplicationStatus(status)
	a.CardType = domain.CardType(cardType)
	if risk.Valid {
		a.RiskScore = &risk.Decimal
	}
	if limit.Valid {
		a.ApprovedLimit = &limit.Decimal
	}
	a.DecisionReason = deref(reason)
	if updatedAt != nil {
		a.UpdatedAt = *updatedAt
	}

	c.KYCStatus = domain.KYCStatus(kyc)
	if dob != nil {
		c.DateOfBirth = *dob
	}
	if custUpdatedAt != nil {
		c.UpdatedAt = *custUpdatedAt
	}
	if street != nil {
		c.Address = &domain.Address{
			StreetAddress: *street,
			City:          deref(city),
			State:         deref(state),
			ZipCode:       deref(zip),
			Country:       deref(country),
		}
	}
	a.Customer = &c
	return &a, nil
}
