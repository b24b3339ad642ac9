package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type KYCStatus string

const (
	KYCPending    KYCStatus = "PENDING"
	KYCInProgress KYCStatus = "IN_PROGRESS"
	KYCCompleted  KYCStatus = "COMPLETED"
	KYCFailed     KYCStatus = "FAILED"
)

type Address struct {
	StreetAddress string `json:"street_address"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zip_code"`
	Country       string `json:"country"`
}

func (a *Address) IsPresent() bool {
	return a != nil && strings.TrimSpace(a.StreetAddress) != ""
}

type Customer struct {
	ID               uuid.UUID `json:"id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Email            string    `json:"email"`
	PhoneNumber      string    `json:"phone_number"`
	TaxID            string    `json:"-"`
	DateOfBirth      time.Time `json:"date_of_birth"`
	Address          *Address  `json:"address,omitempty"`
	IdentityVerified bool      `json:"identity_verified"`
	KYCStatus        KYCStatus `json:"kyc_status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewCustomer builds an unverified customer record. Verification is applied by
// the caller that owns identity resolution.
func NewCustomer(firstName, lastName, email, taxID string) *Customer {
	return &Customer{
		ID:        uuid.New(),
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		TaxID:     taxID,
		KYCStatus: KYCPending,
		CreatedAt: time.Now().UTC(),
	}
}

func (c *Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func (c *Customer) MarkVerified() {
	c.IdentityVerified = true
	c.KYCStatus = KYCCompleted
}
