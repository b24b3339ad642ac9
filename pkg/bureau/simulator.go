package bureau

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"

	"card_underwriting/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	hardInquiry    = "Hard Inquiry"
	maxOpenMonths  = 120
	maxInquiryDays = 90
)

var (
	accountTypes  = []string{domain.AccountTypeCreditCard, "Auto Loan", "Mortgage", "Personal Loan", "Student Loan"}
	creditors     = []string{"Bank of America", "Chase", "Wells Fargo", "Capital One", "Discover"}
	accountStatus = []string{"Current", "Current", "Current", "30 Days Late", "60 Days Late"}
	inquirers     = []string{"Target", "Best Buy", "Amazon Store Card", "Home Depot"}
	twoPercent    = decimal.RequireFromString("0.02")
)

// Simulator produces plausible reports without a real bureau. Output is a pure
// function of the tax id and the clock, so repeated lookups agree.
type Simulator struct {
	minLatency time.Duration
	maxLatency time.Duration
	now        func() time.Time
}

type SimulatorOption func(*Simulator)

// WithLatency makes every lookup wait a duration in [lo, hi).
func WithLatency(lo, hi time.Duration) SimulatorOption {
	return func(s *Simulator) {
		s.minLatency = lo
		s.maxLatency = hi
	}
}

func WithClock(now func() time.Time) SimulatorOption {
	return func(s *Simulator) { s.now = now }
}

func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) FetchReport(ctx context.Context, taxID string) (*domain.CreditBureauReport, error) {
	rng := rand.New(rand.NewSource(seedFor(taxID)))

	if delay := s.latency(rng); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	score := creditScore(rng)
	accounts := generateAccounts(rng, today)

	totalDebt, monthly := decimal.Zero, decimal.Zero
	for _, a := range accounts {
		totalDebt = totalDebt.Add(a.Balance)
		monthly = monthly.Add(a.MonthlyPayment)
	}

	return &domain.CreditBureauReport{
		TaxID:                      taxID,
		CreditScore:                score,
		TotalDebt:                  totalDebt,
		MonthlyDebtPayments:        monthly,
		NumberOfAccounts:           len(accounts),
		NumberOfDelinquentAccounts: rng.Intn(max(1, len(accounts)/4)),
		CreditAccounts:             accounts,
		RecentInquiries:            generateInquiries(rng, today),
		ReportDate:                 today,
	}, nil
}

func (s *Simulator) latency(rng *rand.Rand) time.Duration {
	if s.maxLatency <= s.minLatency {
		return s.minLatency
	}
	return s.minLatency + time.Duration(rng.Int63n(int64(s.maxLatency-s.minLatency)))
}

// creditScore draws 70% from 650-850, 20% from 580-649 and the rest from 300-579.
func creditScore(rng *rand.Rand) int {
	switch p := rng.Float64(); {
	case p < 0.7:
		return 650 + rng.Intn(201)
	case p < 0.9:
		return 580 + rng.Intn(70)
	default:
		return 300 + rng.Intn(280)
	}
}

func generateAccounts(rng *rand.Rand, today time.Time) []domain.CreditAccount {
	n := rng.Intn(5) + 1
	accounts := make([]domain.CreditAccount, 0, n)
	for i := 0; i < n; i++ {
		accountType := accountTypes[rng.Intn(len(accountTypes))]
		limit := decimal.NewFromInt(int64(rng.Intn(20000) + 1000))
		balance := limit.Mul(decimal.NewFromFloat(rng.Float64() * 0.5)).Round(2)

		accounts = append(accounts, domain.CreditAccount{
			AccountType:    accountType,
			CreditorName:   creditors[rng.Intn(len(creditors))],
			Balance:        balance,
			CreditLimit:    limit,
			MonthlyPayment: balance.Mul(twoPercent).Round(2),
			Status:         accountStatus[rng.Intn(len(accountStatus))],
			OpenDate:       today.AddDate(0, -rng.Intn(maxOpenMonths), 0),
		})
	}
	return accounts
}

func generateInquiries(rng *rand.Rand, today time.Time) []domain.CreditInquiry {
	n := rng.Intn(4)
	inquiries := make([]domain.CreditInquiry, 0, n)
	for i := 0; i < n; i++ {
		inquiries = append(inquiries, domain.CreditInquiry{
			InquirerName: inquirers[rng.Intn(len(inquirers))],
			InquiryDate:  today.AddDate(0, 0, -rng.Intn(maxInquiryDays)),
			InquiryType:  hardInquiry,
		})
	}
	return inquiries
}

func seedFor(taxID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(taxID))
	return int64(h.Sum64())
}
