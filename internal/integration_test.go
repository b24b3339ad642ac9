package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"card_underwriting/internal/api"
	"card_underwriting/internal/dispatcher"
	"card_underwriting/internal/domain"
	"card_underwriting/internal/processor"
	"card_underwriting/internal/repository/memory"
	"card_underwriting/internal/service"
	"card_underwriting/pkg/crypto"
	"card_underwriting/pkg/metrics"
	"card_underwriting/pkg/stats"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedBureau struct {
	report *domain.CreditBureauReport
	gate   chan struct{}
}

func (b fixedBureau) FetchReport(ctx context.Context, _ string) (*domain.CreditBureauReport, error) {
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r := *b.report
	return &r, nil
}

type captured struct {
	events chan service.DecisionEvent
}

func (c *captured) Publish(_ context.Context, _, _ string, body any) error {
	c.events <- body.(service.DecisionEvent)
	return nil
}

type testEnv struct {
	router    http.Handler
	disp      *dispatcher.Dispatcher
	notifier  *service.NotificationService
	publisher *captured
	stats     *stats.MemoryRecorder
}

func setup(t *testing.T, creditScore int) *testEnv {
	t.Helper()
	return setupGated(t, creditScore, nil)
}

// setupGated holds every bureau call until gate is closed.
func setupGated(t *testing.T, creditScore int, gate chan struct{}) *testEnv {
	t.Helper()
	ctx := context.Background()

	customers := memory.NewCustomerRepository()
	applications := memory.NewApplicationRepository()
	watchlists := memory.NewWatchlistRepository()
	require.NoError(t, watchlists.Seed(ctx, domain.WatchlistSanctions, []string{"SANCTIONED PERSON ONE"}))
	require.NoError(t, watchlists.Seed(ctx, domain.WatchlistPEP, []string{"POLITICAL FIGURE ONE"}))

	report := &domain.CreditBureauReport{
		CreditScore:         creditScore,
		MonthlyDebtPayments: decimal.NewFromInt(500),
		CreditAccounts: []domain.CreditAccount{
			{AccountType: domain.AccountTypeCreditCard, Balance: decimal.NewFromInt(2000), CreditLimit: decimal.NewFromInt(10000)},
		},
		RecentInquiries: make([]domain.CreditInquiry, 2),
	}

	fp := crypto.NewFingerprinter("test-secret", nil)
	collector := metrics.NewMetricsCollector(nil)
	recorder := stats.NewMemoryRecorder()
	publisher := &captured{events: make(chan service.DecisionEvent, 10)}
	notifier := service.NewNotificationService(publisher, fp, 1, 10, nil)

	screener := processor.NewComplianceScreener(watchlists, processor.StaticAMLChecker(true), nil)
	proc := processor.NewApplicationProcessor(applications, screener, fixedBureau{report: report, gate: gate}, processor.NewRiskEngine(), nil,
		processor.WithDecisionRecorder(recorder),
		processor.WithNotifier(notifier),
		processor.WithMetrics(collector))

	cfg := dispatcher.DefaultConfig()
	cfg.CoreWorkers, cfg.MaxWorkers, cfg.QueueCapacity = 2, 2, 10
	disp, err := dispatcher.New(cfg, proc.Process, proc.HandleFailure, nil)
	require.NoError(t, err)

	svc := service.NewApplicationService(customers, applications, disp, fp, collector, nil)
	handler := api.NewAPIHandler(svc, recorder, collector, nil)

	env := &testEnv{
		router:    api.NewRouter(handler, collector.GetHandler()),
		disp:      disp,
		notifier:  notifier,
		publisher: publisher,
		stats:     recorder,
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.disp.Shutdown(ctx)
		_ = env.notifier.Shutdown(ctx)
	})
	return env
}

func applicationBody(firstName, lastName, ssn, email string) map[string]any {
	return map[string]any{
		"first_name":    firstName,
		"last_name":     lastName,
		"email":         email,
		"ssn":           ssn,
		"date_of_birth": "1985-04-12",
		"address": map[string]any{
			"street_address": "1 Main St",
			"city":           "Springfield",
			"state":          "IL",
			"zip_code":       "62701",
			"country":        "USA",
		},
		"annual_income":     "60000",
		"employment_status": "EMPLOYED",
		"requested_limit":   "15000",
		"card_type":         "GOLD",
	}
}

func submit(t *testing.T, env *testEnv, body map[string]any) (*httptest.ResponseRecorder, api.ApplicationResponse) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/credit-card-applications", bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)

	var resp api.ApplicationResponse
	if w.Code == http.StatusCreated {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func awaitDecision(t *testing.T, env *testEnv, number string) api.ApplicationResponse {
	t.Helper()
	var resp api.ApplicationResponse
	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/credit-card-applications/"+number, nil))
		if w.Code != http.StatusOK {
			return false
		}
		resp = api.ApplicationResponse{}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			return false
		}
		return resp.Status == "APPROVED" || resp.Status == "REJECTED"
	}, 5*time.Second, 10*time.Millisecond)
	return resp
}

func TestEndToEnd_ApprovesGoodApplicant(t *testing.T) {
	env := setup(t, 750)

	w, created := submit(t, env, applicationBody("Jane", "Doe", "123-45-6789", "jane@example.com"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "PENDING", created.Status)

	decided := awaitDecision(t, env, created.ApplicationNumber)

	assert.Equal(t, "APPROVED", decided.Status)
	require.NotNil(t, decided.ApprovedLimit)
	assert.True(t, decided.ApprovedLimit.Equal(decimal.NewFromInt(10500)), "limit %s", decided.ApprovedLimit)
	require.NotNil(t, decided.RiskScore)
	assert.True(t, decided.RiskScore.Equal(decimal.RequireFromString("13.25")), "risk %s", decided.RiskScore)
	require.NotNil(t, decided.CreditScore)
	assert.Equal(t, 750, *decided.CreditScore)

	select {
	case event := <-env.publisher.events:
		assert.Equal(t, created.ApplicationNumber, event.ApplicationNumber)
		assert.Equal(t, "APPROVED", event.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a decision event")
	}

	totals, err := env.stats.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals["APPROVED"])
}

func TestEndToEnd_RejectsSanctionedApplicant(t *testing.T) {
	env := setup(t, 800)

	w, created := submit(t, env, applicationBody("Sanctioned Person", "One", "111-22-3333", "sp@example.com"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	decided := awaitDecision(t, env, created.ApplicationNumber)

	assert.Equal(t, "REJECTED", decided.Status)
	assert.Contains(t, decided.DecisionReason, "Compliance check failed:")
	assert.Nil(t, decided.CreditScore)
	assert.Nil(t, decided.ApprovedLimit)
}

func TestEndToEnd_LowCreditScoreRejected(t *testing.T) {
	env := setup(t, 550)

	_, created := submit(t, env, applicationBody("John", "Smith", "222-33-4444", "john@example.com"))
	decided := awaitDecision(t, env, created.ApplicationNumber)

	assert.Equal(t, "REJECTED", decided.Status)
	assert.Equal(t, domain.ReasonLowCreditScore, decided.DecisionReason)
}

func TestEndToEnd_DuplicatePendingIsConflict(t *testing.T) {
	gate := make(chan struct{})
	env := setupGated(t, 750, gate)

	// Both workers stall at the bureau, so the third application stays queued as PENDING.
	_, a := submit(t, env, applicationBody("Ann", "Lee", "100-00-0001", "ann@example.com"))
	_, b := submit(t, env, applicationBody("Bob", "Ray", "100-00-0002", "bob@example.com"))
	require.Eventually(t, func() bool { return env.disp.Stats().Running == 2 }, 5*time.Second, time.Millisecond)

	body := applicationBody("Jane", "Doe", "123-45-6789", "jane@example.com")
	w, first := submit(t, env, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, _ = submit(t, env, body)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	close(gate)
	for _, number := range []string{a.ApplicationNumber, b.ApplicationNumber, first.ApplicationNumber} {
		awaitDecision(t, env, number)
	}

	w, second := submit(t, env, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEqual(t, first.ApplicationNumber, second.ApplicationNumber)
}

func TestEndToEnd_MetricsExposed(t *testing.T) {
	env := setup(t, 750)
	_, created := submit(t, env, applicationBody("Jane", "Doe", "123-45-6789", "jane@example.com"))
	awaitDecision(t, env, created.ApplicationNumber)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "applications_submitted_total")
}
