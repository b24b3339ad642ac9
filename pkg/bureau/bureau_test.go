package bureau

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"card_underwriting/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }

func TestSimulator_IsDeterministicPerTaxID(t *testing.T) {
	sim := NewSimulator(WithClock(fixedNow))

	first, err := sim.FetchReport(context.Background(), "123-45-6789")
	require.NoError(t, err)
	second, err := sim.FetchReport(context.Background(), "123-45-6789")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSimulator_ReportShape(t *testing.T) {
	sim := NewSimulator(WithClock(fixedNow))

	for _, taxID := range []string{"111-11-1111", "222-22-2222", "333-33-3333", "987-65-4321", "555-12-3456"} {
		report, err := sim.FetchReport(context.Background(), taxID)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, report.CreditScore, 300)
		assert.LessOrEqual(t, report.CreditScore, 850)
		assert.Len(t, report.CreditAccounts, report.NumberOfAccounts)
		assert.GreaterOrEqual(t, report.NumberOfAccounts, 1)
		assert.LessOrEqual(t, report.NumberOfAccounts, 5)
		assert.LessOrEqual(t, len(report.RecentInquiries), 3)

		total := decimal.Zero
		for _, a := range report.CreditAccounts {
			assert.True(t, a.Balance.LessThanOrEqual(a.CreditLimit.Div(decimal.NewFromInt(2))), "balance above half the limit")
			assert.True(t, a.CreditLimit.GreaterThanOrEqual(decimal.NewFromInt(1000)))
			total = total.Add(a.Balance)
		}
		assert.True(t, total.Equal(report.TotalDebt))
		for _, inq := range report.RecentInquiries {
			assert.Equal(t, "Hard Inquiry", inq.InquiryType)
		}
	}
}

func TestSimulator_LatencyHonoursContext(t *testing.T) {
	sim := NewSimulator(WithLatency(time.Second, 2*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sim.FetchReport(ctx, "123-45-6789")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPClient_FetchReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/reports/123-45-6789", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get(apiKeyHeader))
		_ = json.NewEncoder(w).Encode(domain.CreditBureauReport{
			CreditScore:         712,
			TotalDebt:           decimal.NewFromInt(4000),
			MonthlyDebtPayments: decimal.NewFromInt(80),
			NumberOfAccounts:    1,
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL+"/", "secret", time.Second)
	report, err := client.FetchReport(context.Background(), "123-45-6789")

	require.NoError(t, err)
	assert.Equal(t, 712, report.CreditScore)
	assert.Equal(t, "123-45-6789", report.TaxID)
	assert.True(t, report.MonthlyDebtPayments.Equal(decimal.NewFromInt(80)))
}

func TestHTTPClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrReportNotFound},
		{"server error", http.StatusBadGateway, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, "", time.Second).FetchReport(context.Background(), "123-45-6789")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

type countingGateway struct {
	calls atomic.Int32
}

func (g *countingGateway) FetchReport(ctx context.Context, taxID string) (*domain.CreditBureauReport, error) {
	g.calls.Add(1)
	return &domain.CreditBureauReport{TaxID: taxID}, nil
}

func TestRateLimited_WaitRespectsContext(t *testing.T) {
	next := &countingGateway{}
	limited := NewRateLimited(next, 0.01, 1)

	_, err := limited.FetchReport(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = limited.FetchReport(ctx, "b")

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), next.calls.Load())
}
