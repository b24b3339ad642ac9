package processor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"card_underwriting/internal/domain"
	"card_underwriting/internal/repository"
)

const (
	complianceReasonPrefix = "Compliance check failed:"
	msgKYCIncomplete       = "KYC verification incomplete."
	msgAMLFailed           = "AML check failed."
	msgSanctionsMatch      = "Sanctions list match found."
	msgPEPMatch            = "PEP match found."

	DefaultAMLPassRate = 0.95
)

// AMLChecker stands in for an anti-money-laundering provider.
type AMLChecker interface {
	Check(ctx context.Context, customer *domain.Customer) (bool, error)
}

// RandomAMLChecker passes a fixed share of customers at random.
type RandomAMLChecker struct {
	mu       sync.Mutex
	rng      *rand.Rand
	passRate float64
}

func NewRandomAMLChecker(passRate float64, src rand.Source) *RandomAMLChecker {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &RandomAMLChecker{rng: rand.New(src), passRate: passRate}
}

func (c *RandomAMLChecker) Check(_ context.Context, _ *domain.Customer) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64() < c.passRate, nil
}

type StaticAMLChecker bool

func (c StaticAMLChecker) Check(context.Context, *domain.Customer) (bool, error) {
	return bool(c), nil
}

type ComplianceScreener struct {
	watchlists repository.WatchlistRepository
	aml        AMLChecker
	latency    time.Duration
	logger     *slog.Logger
}

type ScreenerOption func(*ComplianceScreener)

// WithScreeningLatency simulates a slow external screening provider.
func WithScreeningLatency(d time.Duration) ScreenerOption {
	return func(s *ComplianceScreener) { s.latency = d }
}

func NewComplianceScreener(watchlists repository.WatchlistRepository, aml AMLChecker, logger *slog.Logger, opts ...ScreenerOption) *ComplianceScreener {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ComplianceScreener{
		watchlists: watchlists,
		aml:        aml,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Screen runs the KYC, AML, sanctions and PEP checks. Any error means the
// screening itself could not complete.
func (s *ComplianceScreener) Screen(ctx context.Context, customer *domain.Customer) (*domain.ComplianceResult, error) {
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.latency):
		}
	}

	result := &domain.ComplianceResult{
		KYCPassed: customer.IdentityVerified && customer.TaxID != "" && customer.Address.IsPresent(),
	}

	amlPassed, err := s.aml.Check(ctx, customer)
	if err != nil {
		return nil, fmt.Errorf("aml check: %w", err)
	}
	result.AMLPassed = amlPassed

	fullName := strings.ToUpper(customer.FullName())
	if result.SanctionsPassed, err = s.clearOf(ctx, domain.WatchlistSanctions, fullName); err != nil {
		return nil, err
	}
	if result.PEPPassed, err = s.clearOf(ctx, domain.WatchlistPEP, fullName); err != nil {
		return nil, err
	}

	result.OverallPassed = result.KYCPassed && result.AMLPassed && result.SanctionsPassed && result.PEPPassed
	if !result.OverallPassed {
		result.Reason = failureReason(result)
		s.logger.InfoContext(ctx, "Compliance screening failed",
			slog.String("customer_id", customer.ID.String()),
			slog.String("reason", result.Reason))
	}

	return result, nil
}

func (s *ComplianceScreener) clearOf(ctx context.Context, list domain.WatchlistType, upperName string) (bool, error) {
	entries, err := s.watchlists.GetActive(ctx, list)
	if err != nil {
		return false, fmt.Errorf("failed to load %s watchlist: %w", list, err)
	}
	for _, e := range entries {
		name := strings.ToUpper(strings.TrimSpace(e.Name))
		if name != "" && strings.Contains(upperName, name) {
			return false, nil
		}
	}
	return true, nil
}

func failureReason(r *domain.ComplianceResult) string {
	parts := []string{complianceReasonPrefix}
	if !r.KYCPassed {
		parts = append(parts, msgKYCIncomplete)
	}
	if !r.AMLPassed {
		parts = append(parts, msgAMLFailed)
	}
	if !r.SanctionsPassed {
		parts = append(parts, msgSanctionsMatch)
	}
	if !r.PEPPassed {
		parts = append(parts, msgPEPMatch)
	}
	return strings.Join(parts, " ")
}
