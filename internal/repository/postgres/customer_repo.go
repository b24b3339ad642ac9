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
)

const selectCustomer = `
	SELECT id, first_name, last_name, email, phone_number, tax_id, date_of_birth,
	       street_address, city, state, zip_code, country,
	       identity_verified, kyc_status, created_at, updated_at
	FROM customers
`

type CustomerRepository struct {
	db *pgxpool.Pool
}

func NewCustomerRepository(db *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) Save(ctx context.Context, c *domain.Customer) error {
	query := `
		INSERT INTO customers (
			id, first_name, last_name, email, phone_number, tax_id, date_of_birth,
			street_address, city, state, zip_code, country,
			identity_verified, kyc_status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	var street, city, state, zip, country *string
	if c.Address != nil {
		street, city, state, zip, country = &c.Address.StreetAddress, &c.Address.City, &c.Address.State, &c.Address.ZipCode, &c.Address.Country
	}
	var dob *time.Time
	if !c.DateOfBirth.IsZero() {
		dob = &c.DateOfBirth
	}

	_, err := r.db.Exec(ctx, query,
		c.ID, c.FirstName, c.LastName, c.Email, c.PhoneNumber, c.TaxID, dob,
		street, city, state, zip, country,
		c.IdentityVerified, string(c.KYCStatus), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", mapWriteError(err))
	}
	return nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return r.getOne(ctx, selectCustomer+" WHERE id = $1", id)
}

func (r *CustomerRepository) GetByTaxID(ctx context.Context, taxID string) (*domain.Customer, error) {
	return r.getOne(ctx, selectCustomer+" WHERE tax_id = $1", taxID)
}

func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return r.getOne(ctx, selectCustomer+" WHERE lower(email) = lower($1)", email)
}

func (r *CustomerRepository) getOne(ctx context.Context, query string, arg any) (*domain.Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer", repository.ErrNotFound)
		}
		return nil, err
	}
	return c, nil
}

func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var (
		c                                 domain.Customer
		kyc                               string
		dob, updatedAt                    *time.Time
		street, city, state, zip, country *string
	)
	err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber, &c.TaxID, &dob,
		&street, &city, &state, &zip, &country,
		&c.IdentityVerified, &kyc, &c.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.KYCStatus = domain.KYCStatus(kyc)
	if dob != nil {
		c.DateOfBirth = *dob
	}
	if updatedAt != nil {
		c.UpdatedAt = *updatedAt
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
	return &c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
