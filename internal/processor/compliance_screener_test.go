package processor

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"card_underwriting/internal/domain"
	"card_underwriting/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededWatchlists(t *testing.T) *memory.WatchlistRepository {
	t.Helper()
	repo := memory.NewWatchlistRepository()
	ctx := context.Background()
	require.NoError(t, repo.Seed(ctx, domain.WatchlistSanctions, []string{"SANCTIONED PERSON ONE", "BANNED INDIVIDUAL THREE"}))
	require.NoError(t, repo.Seed(ctx, domain.WatchlistPEP, []string{"POLITICAL FIGURE ONE"}))
	return repo
}

func verifiedCustomer(first, last string) *domain.Customer {
	c := domain.NewCustomer(first, last, "someone@example.com", "123-45-6789")
	c.Address = &domain.Address{StreetAddress: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701", Country: "USA"}
	c.MarkVerified()
	return c
}

func TestComplianceScreener_Passes(t *testing.T) {
	s := NewComplianceScreener(seededWatchlists(t), StaticAMLChecker(true), nil)

	result, err := s.Screen(context.Background(), verifiedCustomer("Jane", "Doe"))

	require.NoError(t, err)
	assert.True(t, result.OverallPassed)
	assert.Empty(t, result.Reason)
}

func TestComplianceScreener_FailureReasons(t *testing.T) {
	tests := []struct {
		name     string
		customer func() *domain.Customer
		aml      bool
		want     string
	}{
		{
			name:     "sanctions substring match is case insensitive",
			customer: func() *domain.Customer { return verifiedCustomer("Sanctioned Person", "One") },
			aml:      true,
			want:     "Compliance check failed: Sanctions list match found.",
		},
		{
			name:     "pep match",
			customer: func() *domain.Customer { return verifiedCustomer("Dr Political", "Figure One") },
			aml:      true,
			want:     "Compliance check failed: PEP match found.",
		},
		{
			name: "missing address and aml",
			customer: func() *domain.Customer {
				c := verifiedCustomer("Jane", "Doe")
				c.Address = nil
				return c
			},
			aml:  false,
			want: "Compliance check failed: KYC verification incomplete. AML check failed.",
		},
		{
			name: "unverified identity with sanctions",
			customer: func() *domain.Customer {
				c := verifiedCustomer("banned individual", "three")
				c.IdentityVerified = false
				return c
			},
			aml:  true,
			want: "Compliance check failed: KYC verification incomplete. Sanctions list match found.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewComplianceScreener(seededWatchlists(t), StaticAMLChecker(tt.aml), nil)

			result, err := s.Screen(context.Background(), tt.customer())

			require.NoError(t, err)
			assert.False(t, result.OverallPassed)
			assert.Equal(t, tt.want, result.Reason)
		})
	}
}

func TestComplianceScreener_DeactivatedEntryIgnored(t *testing.T) {
	repo := seededWatchlists(t)
	require.NoError(t, repo.Deactivate(context.Background(), "sanctions-1"))
	s := NewComplianceScreener(repo, StaticAMLChecker(true), nil)

	result, err := s.Screen(context.Background(), verifiedCustomer("Sanctioned Person", "One"))

	require.NoError(t, err)
	assert.True(t, result.SanctionsPassed)
}

type failingAML struct{}

func (failingAML) Check(context.Context, *domain.Customer) (bool, error) {
	return false, errors.New("provider down")
}

func TestComplianceScreener_AMLErrorIsReturned(t *testing.T) {
	s := NewComplianceScreener(seededWatchlists(t), failingAML{}, nil)

	_, err := s.Screen(context.Background(), verifiedCustomer("Jane", "Doe"))

	assert.Error(t, err)
}

func TestRandomAMLChecker_PassRate(t *testing.T) {
	c := NewRandomAMLChecker(DefaultAMLPassRate, rand.NewSource(42))
	passed := 0
	for i := 0; i < 10000; i++ {
		ok, _ := c.Check(context.Background(), nil)
		if ok {
			passed++
		}
	}
	assert.InDelta(t, 9500, passed, 200)

	never := NewRandomAMLChecker(0, rand.NewSource(1))
	ok, _ := never.Check(context.Background(), nil)
	assert.False(t, ok)
}
