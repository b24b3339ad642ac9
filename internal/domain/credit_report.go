package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const AccountTypeCreditCard = "Credit Card"

type CreditAccount struct {
	AccountType    string          `json:"account_type"`
	CreditorName   string          `json:"creditor_name"`
	Balance        decimal.Decimal `json:"balance"`
	CreditLimit    decimal.Decimal `json:"credit_limit"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	Status         string          `json:"status"`
	OpenDate       time.Time       `json:"open_date"`
}

type CreditInquiry struct {
	InquirerName string    `json:"inquirer_name"`
	InquiryDate  time.Time `json:"inquiry_date"`
	InquiryType  string    `json:"inquiry_type"`
}

// CreditBureauReport is a point-in-time snapshot from the bureau. Only the
// credit score outlives the pipeline run that fetched it.
type CreditBureauReport struct {
	TaxID                      string          `json:"-"`
	CreditScore                int             `json:"credit_score"`
	TotalDebt                  decimal.Decimal `json:"total_debt"`
	MonthlyDebtPayments        decimal.Decimal `json:"monthly_debt_payments"`
	NumberOfAccounts           int             `json:"number_of_accounts"`
	NumberOfDelinquentAccounts int             `json:"number_of_delinquent_accounts"`
	CreditAccounts             []CreditAccount `json:"credit_accounts"`
	RecentInquiries            []CreditInquiry `json:"recent_inquiries"`
	ReportDate                 time.Time       `json:"report_date"`
}
