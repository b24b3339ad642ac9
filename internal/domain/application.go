package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ApplicationStatus string
type CardType string

const (
	StatusPending   ApplicationStatus = "PENDING"
	StatusInReview  ApplicationStatus = "IN_REVIEW"
	StatusApproved  ApplicationStatus = "APPROVED"
	StatusRejected  ApplicationStatus = "REJECTED"
	StatusCancelled ApplicationStatus = "CANCELLED"

	CardClassic  CardType = "CLASSIC"
	CardGold     CardType = "GOLD"
	CardPlatinum CardType = "PLATINUM"
	CardInfinite CardType = "INFINITE"
)

const (
	ReasonApproved        = "Application approved based on credit assessment"
	ReasonLowCreditScore  = "Credit score below minimum requirement (580)"
	ReasonSystemError     = "System error during processing"
	reasonRiskTooHighForm = "Risk assessment score too high (%s/100)"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[ApplicationStatus][]ApplicationStatus{
	StatusPending:  {StatusInReview, StatusCancelled},
	StatusInReview: {StatusApproved, StatusRejected, StatusCancelled},
}

func (s ApplicationStatus) CanTransitionTo(next ApplicationStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ApplicationStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func ParseCardType(v string) (CardType, bool) {
	switch ct := CardType(v); ct {
	case CardClassic, CardGold, CardPlatinum, CardInfinite:
		return ct, true
	default:
		return "", false
	}
}

type Application struct {
	ID                uuid.UUID         `json:"id"`
	ApplicationNumber string            `json:"application_number"`
	Status            ApplicationStatus `json:"status"`
	CustomerID        uuid.UUID         `json:"customer_id"`
	Customer          *Customer         `json:"customer,omitempty"`
	RequestedLimit    decimal.Decimal   `json:"requested_limit"`
	AnnualIncome      decimal.Decimal   `json:"annual_income"`
	EmploymentStatus  string            `json:"employment_status"`
	CardType          CardType          `json:"card_type"`
	CreditScore       *int              `json:"credit_score,omitempty"`
	RiskScore         *decimal.Decimal  `json:"risk_score,omitempty"`
	ApprovedLimit     *decimal.Decimal  `json:"approved_limit,omitempty"`
	DecisionReason    string            `json:"decision_reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	DecidedAt         *time.Time        `json:"decided_at,omitempty"`
}

func NewApplication(customer *Customer, cardType CardType, requestedLimit, annualIncome decimal.Decimal) *Application {
	now := time.Now().UTC()
	return &Application{
		ID:                uuid.New(),
		ApplicationNumber: generateApplicationNumber(now),
		Status:            StatusPending,
		CustomerID:        customer.ID,
		Customer:          customer,
		RequestedLimit:    requestedLimit,
		AnnualIncome:      annualIncome,
		CardType:          cardType,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (a *Application) WithEmploymentStatus(status string) *Application {
	a.EmploymentStatus = status
	return a
}

func (a *Application) TaxID() string {
	if a.Customer == nil {
		return ""
	}
	return a.Customer.TaxID
}

func (a *Application) transition(next ApplicationStatus, at time.Time) error {
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = at
	return nil
}

func (a *Application) StartReview(at time.Time) error {
	return a.transition(StatusInReview, at)
}

func (a *Application) Reject(reason string, at time.Time) error {
	if err := a.transition(StatusRejected, at); err != nil {
		return err
	}
	a.ApprovedLimit = nil
	a.DecisionReason = reason
	a.DecidedAt = &at
	return nil
}

func (a *Application) Approve(limit decimal.Decimal, at time.Time) error {
	if err := a.transition(StatusApproved, at); err != nil {
		return err
	}
	a.ApprovedLimit = &limit
	a.DecisionReason = ReasonApproved
	a.DecidedAt = &at
	return nil
}

func (a *Application) Cancel(at time.Time) error {
	if err := a.transition(StatusCancelled, at); err != nil {
		return err
	}
	a.DecidedAt = &at
	return nil
}

// Clone returns a copy that shares no mutable pointers with a.
func (a *Application) Clone() *Application {
	cp := *a
	if a.Customer != nil {
		c := *a.Customer
		if a.Customer.Address != nil {
			addr := *a.Customer.Address
			c.Address = &addr
		}
		cp.Customer = &c
	}
	if a.CreditScore != nil {
		v := *a.CreditScore
		cp.CreditScore = &v
	}
	if a.RiskScore != nil {
		v := *a.RiskScore
		cp.RiskScore = &v
	}
	if a.ApprovedLimit != nil {
		v := *a.ApprovedLimit
		cp.ApprovedLimit = &v
	}
	if a.DecidedAt != nil {
		v := *a.DecidedAt
		cp.DecidedAt = &v
	}
	return &cp
}

func RiskTooHighReason(score decimal.Decimal) string {
	return fmt.Sprintf(reasonRiskTooHighForm, score.StringFixed(2))
}

func generateApplicationNumber(now time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("APP-%d-%s", now.UnixMilli(), hex.EncodeToString(b))
}
