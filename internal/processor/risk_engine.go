package processor

import (
	"card_underwriting/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	ratioPrecision = 4
	scorePrecision = 2
)

var (
	hundred          = decimal.NewFromInt(100)
	twelve           = decimal.NewFromInt(12)
	limitIncomeShare = decimal.RequireFromString("0.2")
	limitStep        = decimal.NewFromInt(500)
)

// RiskFactor maps one aspect of an application onto a 0-100 sub-score where
// lower is safer.
type RiskFactor struct {
	Name   string
	Weight decimal.Decimal
	Score  func(app *domain.Application, report *domain.CreditBureauReport) int
}

type FactorScore struct {
	Name     string
	SubScore int
	Weight   decimal.Decimal
}

type RiskEngine struct {
	factors []RiskFactor
}

func NewRiskEngine() *RiskEngine {
	return &RiskEngine{
		factors: []RiskFactor{
			{
				Name:   "credit_score",
				Weight: decimal.RequireFromString("0.35"),
				Score: func(_ *domain.Application, r *domain.CreditBureauReport) int {
					return creditScoreBand(r.CreditScore)
				},
			},
			{
				Name:   "debt_to_income",
				Weight: decimal.RequireFromString("0.25"),
				Score:  debtToIncomeScore,
			},
			{
				Name:   "delinquencies",
				Weight: decimal.RequireFromString("0.20"),
				Score: func(_ *domain.Application, r *domain.CreditBureauReport) int {
					return delinquencyBand(r.NumberOfDelinquentAccounts)
				},
			},
			{
				Name:   "utilization",
				Weight: decimal.RequireFromString("0.15"),
				Score: func(_ *domain.Application, r *domain.CreditBureauReport) int {
					return utilizationScore(r.CreditAccounts)
				},
			},
			{
				Name:   "recent_inquiries",
				Weight: decimal.RequireFromString("0.05"),
				Score: func(_ *domain.Application, r *domain.CreditBureauReport) int {
					return inquiryBand(len(r.RecentInquiries))
				},
			},
		},
	}
}

// Assess returns the weighted risk score in [0, 100], rounded half-up to two
// places, along with each factor's contribution.
func (e *RiskEngine) Assess(app *domain.Application, report *domain.CreditBureauReport) (decimal.Decimal, []FactorScore) {
	total := decimal.Zero
	scores := make([]FactorScore, 0, len(e.factors))

	for _, f := range e.factors {
		sub := f.Score(app, report)
		total = total.Add(decimal.NewFromInt(int64(sub)).Mul(f.Weight))
		scores = append(scores, FactorScore{Name: f.Name, SubScore: sub, Weight: f.Weight})
	}

	total = total.Round(scorePrecision)
	if total.LessThan(decimal.Zero) {
		total = decimal.Zero
	}
	if total.GreaterThan(hundred) {
		total = hundred
	}
	return total, scores
}

// ApprovedLimit scales a fifth of annual income by the inverse risk, caps it
// at the requested limit and rounds to the nearest 500.
func (e *RiskEngine) ApprovedLimit(annualIncome, requestedLimit, riskScore decimal.Decimal) decimal.Decimal {
	base := annualIncome.Mul(limitIncomeShare)
	multiplier := hundred.Sub(riskScore).DivRound(hundred, 2)
	calculated := base.Mul(multiplier)

	approved := decimal.Min(calculated, requestedLimit)
	return approved.DivRound(limitStep, 0).Mul(limitStep)
}

func creditScoreBand(score int) int {
	switch {
	case score >= 800:
		return 5
	case score >= 740:
		return 15
	case score >= 670:
		return 30
	case score >= 580:
		return 60
	default:
		return 90
	}
}

func debtToIncomeScore(app *domain.Application, r *domain.CreditBureauReport) int {
	monthlyIncome := app.AnnualIncome.DivRound(twelve, 2)
	if monthlyIncome.IsZero() {
		return 100
	}
	dti := r.MonthlyDebtPayments.DivRound(monthlyIncome, ratioPrecision).Mul(hundred)

	switch {
	case dti.LessThanOrEqual(decimal.NewFromInt(20)):
		return 10
	case dti.LessThanOrEqual(decimal.NewFromInt(30)):
		return 25
	case dti.LessThanOrEqual(decimal.NewFromInt(40)):
		return 50
	case dti.LessThanOrEqual(decimal.NewFromInt(50)):
		return 75
	default:
		return 95
	}
}

func delinquencyBand(count int) int {
	switch {
	case count <= 0:
		return 5
	case count == 1:
		return 40
	case count == 2:
		return 70
	default:
		return 95
	}
}

// utilizationScore only looks at credit card accounts.
func utilizationScore(accounts []domain.CreditAccount) int {
	balance, limit := decimal.Zero, decimal.Zero
	for _, a := range accounts {
		if a.AccountType != domain.AccountTypeCreditCard {
			continue
		}
		balance = balance.Add(a.Balance)
		limit = limit.Add(a.CreditLimit)
	}
	if limit.IsZero() {
		return 50
	}
	utilization := balance.DivRound(limit, ratioPrecision).Mul(hundred)

	switch {
	case utilization.LessThanOrEqual(decimal.NewFromInt(10)):
		return 5
	case utilization.LessThanOrEqual(decimal.NewFromInt(30)):
		return 20
	case utilization.LessThanOrEqual(decimal.NewFromInt(50)):
		return 45
	case utilization.LessThanOrEqual(decimal.NewFromInt(70)):
		return 70
	default:
		return 90
	}
}

func inquiryBand(count int) int {
	switch {
	case count <= 1:
		return 10
	case count <= 3:
		return 30
	case count <= 5:
		return 60
	default:
		return 85
	}
}
