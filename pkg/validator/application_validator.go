package validator

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"card_underwriting/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	DateLayout     = "2006-01-02"
	DefaultCountry = "USA"
)

var (
	minRequestedLimit = decimal.NewFromInt(1000)
	maxRequestedLimit = decimal.NewFromInt(100000)
)

type AddressInput struct {
	StreetAddress string `json:"street_address"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zip_code"`
	Country       string `json:"country"`
}

// ApplicationInput is the card application payload as received over the wire.
type ApplicationInput struct {
	FirstName        string           `json:"first_name"`
	LastName         string           `json:"last_name"`
	Email            string           `json:"email"`
	PhoneNumber      string           `json:"phone_number"`
	SSN              string           `json:"ssn"`
	DateOfBirth      string           `json:"date_of_birth"`
	Address          *AddressInput    `json:"address"`
	AnnualIncome     *decimal.Decimal `json:"annual_income"`
	EmploymentStatus string           `json:"employment_status"`
	RequestedLimit   *decimal.Decimal `json:"requested_limit"`
	CardType         string           `json:"card_type"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("validation errors: %s", strings.Join(msgs, "; "))
}

type ApplicationValidator struct {
	emailRegex *regexp.Regexp
	phoneRegex *regexp.Regexp
	ssnRegex   *regexp.Regexp
	stateRegex *regexp.Regexp
	zipRegex   *regexp.Regexp
	now        func() time.Time
}

func NewApplicationValidator() *ApplicationValidator {
	return &ApplicationValidator{
		emailRegex: regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`),
		phoneRegex: regexp.MustCompile(`^\+?[1-9]\d{1,14}$`),
		ssnRegex:   regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`),
		stateRegex: regexp.MustCompile(`^[A-Z]{2}$`),
		zipRegex:   regexp.MustCompile(`^\d{5}(-\d{4})?$`),
		now:        time.Now,
	}
}

// ValidateApplication reports every problem with in at once. Phone number is
// optional; every other field is required.
func (v *ApplicationValidator) ValidateApplication(in *ApplicationInput) error {
	var errs []FieldError
	add := func(field, msg string) {
		errs = append(errs, FieldError{Field: field, Message: msg})
	}

	if blank(in.FirstName) {
		add("first_name", "First name is required")
	}
	if blank(in.LastName) {
		add("last_name", "Last name is required")
	}
	switch {
	case blank(in.Email):
		add("email", "Email is required")
	case !v.emailRegex.MatchString(in.Email):
		add("email", "Valid email is required")
	}
	if in.PhoneNumber != "" && !v.phoneRegex.MatchString(in.PhoneNumber) {
		add("phone_number", "Valid phone number is required")
	}
	if !v.ssnRegex.MatchString(in.SSN) {
		add("ssn", "SSN must be in format XXX-XX-XXXX")
	}

	if blank(in.DateOfBirth) {
		add("date_of_birth", "Date of birth is required")
	} else if dob, err := time.Parse(DateLayout, in.DateOfBirth); err != nil {
		add("date_of_birth", "Date of birth must be formatted as YYYY-MM-DD")
	} else if !dob.Before(v.now()) {
		add("date_of_birth", "Date of birth must be in the past")
	}

	if in.Address == nil {
		add("address", "Address is required")
	} else {
		a := in.Address
		if blank(a.StreetAddress) {
			add("address.street_address", "Street address is required")
		}
		if blank(a.City) {
			add("address.city", "City is required")
		}
		if !v.stateRegex.MatchString(a.State) {
			add("address.state", "State must be 2-letter code")
		}
		if !v.zipRegex.MatchString(a.ZipCode) {
			add("address.zip_code", "Valid US zip code required")
		}
	}

	switch {
	case in.AnnualIncome == nil:
		add("annual_income", "Annual income is required")
	case in.AnnualIncome.IsNegative():
		add("annual_income", "Annual income must be positive")
	}

	if blank(in.EmploymentStatus) {
		add("employment_status", "Employment status is required")
	}

	switch {
	case in.RequestedLimit == nil:
		add("requested_limit", "Requested limit is required")
	case in.RequestedLimit.LessThan(minRequestedLimit):
		add("requested_limit", "Minimum requested limit is $1000")
	case in.RequestedLimit.GreaterThan(maxRequestedLimit):
		add("requested_limit", "Maximum requested limit is $100000")
	}

	if _, ok := domain.ParseCardType(strings.ToUpper(in.CardType)); !ok {
		add("card_type", "Card type must be one of CLASSIC, GOLD, PLATINUM, INFINITE")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
