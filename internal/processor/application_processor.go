package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"card_underwriting/internal/domain"
	"card_underwriting/internal/repository"
	"card_underwriting/pkg/bureau"
	"card_underwriting/pkg/crypto"
	"card_underwriting/pkg/stats"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MinimumCreditScore   = 580
	DefaultBureauTimeout = 10 * time.Second

	stageLoad       = "load"
	stageCompliance = "compliance"
	stageBureau     = "bureau"
	stageDecision   = "decision"
)

var maxRiskScore = decimal.NewFromInt(75)

type Screener interface {
	Screen(ctx context.Context, customer *domain.Customer) (*domain.ComplianceResult, error)
}

type DecisionRecorder interface {
	Record(ctx context.Context, outcome stats.Outcome) error
}

type Notifier interface {
	NotifyDecision(ctx context.Context, app *domain.Application) error
}

type DecisionMetrics interface {
	RecordDecision(status domain.ApplicationStatus, cardType domain.CardType, riskScore *decimal.Decimal, duration time.Duration)
	RecordStageFailure(stage string)
}

// ApplicationProcessor runs one application from PENDING to a terminal status.
type ApplicationProcessor struct {
	appRepo       repository.ApplicationRepository
	screener      Screener
	bureau        bureau.Gateway
	risk          *RiskEngine
	stats         DecisionRecorder
	notifier      Notifier
	metrics       DecisionMetrics
	bureauTimeout time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

type ProcessorOption func(*ApplicationProcessor)

func WithDecisionRecorder(r DecisionRecorder) ProcessorOption {
	return func(p *ApplicationProcessor) { p.stats = r }
}

func WithNotifier(n Notifier) ProcessorOption {
	return func(p *ApplicationProcessor) { p.notifier = n }
}

func WithMetrics(m DecisionMetrics) ProcessorOption {
	return func(p *ApplicationProcessor) { p.metrics = m }
}

func WithBureauTimeout(d time.Duration) ProcessorOption {
	return func(p *ApplicationProcessor) {
		if d > 0 {
			p.bureauTimeout = d
		}
	}
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *ApplicationProcessor) { p.now = now }
}

func NewApplicationProcessor(
	appRepo repository.ApplicationRepository,
	screener Screener,
	gateway bureau.Gateway,
	risk *RiskEngine,
	logger *slog.Logger,
	opts ...ProcessorOption,
) *ApplicationProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if risk == nil {
		risk = NewRiskEngine()
	}

	p := &ApplicationProcessor{
		appRepo:       appRepo,
		screener:      screener,
		bureau:        gateway,
		risk:          risk,
		stats:         noopRecorder{},
		notifier:      noopNotifier{},
		metrics:       noopMetrics{},
		bureauTimeout: DefaultBureauTimeout,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type decision struct {
	approve bool
	limit   decimal.Decimal
	reason  string
}

func rejection(reason string) decision {
	return decision{reason: reason}
}

// Process evaluates the application identified by applicationID. Stage
// failures end in a system-error rejection and are not returned; an error
// means the application could not be loaded or its decision not persisted.
func (p *ApplicationProcessor) Process(ctx context.Context, applicationID string) error {
	start := time.Now()

	id, err := uuid.Parse(applicationID)
	if err != nil {
		return fmt.Errorf("invalid application id %q: %w", applicationID, err)
	}

	app, err := p.appRepo.GetByID(ctx, id)
	if err != nil {
		p.metrics.RecordStageFailure(stageLoad)
		return fmt.Errorf("failed to load application: %w", err)
	}
	if app.Status != domain.StatusPending {
		p.logger.InfoContext(ctx, "Skipping application that is not pending",
			slog.String("application_id", applicationID),
			slog.String("status", string(app.Status)))
		return nil
	}

	if err := app.StartReview(p.now()); err != nil {
		return err
	}
	if err := p.appRepo.Update(ctx, app); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			p.logger.WarnContext(ctx, "Application changed before review started",
				slog.String("application_id", applicationID),
				slog.String("error", err.Error()))
			return nil
		}
		return fmt.Errorf("failed to start review: %w", err)
	}

	p.logger.InfoContext(ctx, "Application in review",
		slog.String("application_id", applicationID),
		slog.String("application_number", app.ApplicationNumber))

	d, stage, err := p.evaluate(ctx, app)
	if err != nil {
		p.metrics.RecordStageFailure(stage)
		p.logger.ErrorContext(ctx, "Underwriting stage failed",
			slog.String("application_id", applicationID),
			slog.String("stage", stage),
			slog.String("error", err.Error()))
		d = rejection(domain.ReasonSystemError)
	}

	return p.decide(ctx, app, d, start)
}

// evaluate runs compliance, bureau and risk stages and returns the first
// decision that applies.
func (p *ApplicationProcessor) evaluate(ctx context.Context, app *domain.Application) (decision, string, error) {
	if app.Customer == nil {
		return decision{}, stageCompliance, errors.New("application has no customer snapshot")
	}

	compliance, err := p.screener.Screen(ctx, app.Customer)
	if err != nil {
		return decision{}, stageCompliance, err
	}
	if !compliance.OverallPassed {
		return rejection(compliance.Reason), "", nil
	}

	report, err := p.fetchReport(ctx, app.TaxID())
	if err != nil {
		return decision{}, stageBureau, err
	}
	score := report.CreditScore
	app.CreditScore = &score

	risk, factors := p.risk.Assess(app, report)
	app.RiskScore = &risk
	p.logger.DebugContext(ctx, "Risk assessed",
		slog.String("application_id", app.ID.String()),
		slog.String("risk_score", risk.StringFixed(2)),
		slog.Any("factors", factors))

	switch {
	case report.CreditScore < MinimumCreditScore:
		return rejection(domain.ReasonLowCreditScore), "", nil
	case risk.GreaterThan(maxRiskScore):
		return rejection(domain.RiskTooHighReason(risk)), "", nil
	}

	limit := p.risk.ApprovedLimit(app.AnnualIncome, app.RequestedLimit, risk)
	return decision{approve: true, limit: limit}, "", nil
}

func (p *ApplicationProcessor) fetchReport(ctx context.Context, taxID string) (*domain.CreditBureauReport, error) {
	ctx, cancel := context.WithTimeout(ctx, p.bureauTimeout)
	defer cancel()

	report, err := p.bureau.FetchReport(ctx, taxID)
	if err != nil {
		return nil, fmt.Errorf("fetch credit report for %s: %w", crypto.MaskTaxID(taxID), err)
	}
	if report == nil {
		return nil, fmt.Errorf("fetch credit report for %s: empty report", crypto.MaskTaxID(taxID))
	}
	return report, nil
}

func (p *ApplicationProcessor) decide(ctx context.Context, app *domain.Application, d decision, start time.Time) error {
	var err error
	if d.approve {
		err = app.Approve(d.limit, p.now())
	} else {
		err = app.Reject(d.reason, p.now())
	}
	if err != nil {
		return err
	}

	if err := p.appRepo.Update(ctx, app); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			p.logger.WarnContext(ctx, "Decision discarded, application changed during review",
				slog.String("application_id", app.ID.String()),
				slog.String("decision", string(app.Status)),
				slog.String("error", fmt.Errorf("%w: %w", domain.ErrInvalidTransition, err).Error()))
			return nil
		}
		p.metrics.RecordStageFailure(stageDecision)
		return fmt.Errorf("failed to persist decision: %w", err)
	}

	p.logger.InfoContext(ctx, "Application decided",
		slog.String("application_id", app.ID.String()),
		slog.String("application_number", app.ApplicationNumber),
		slog.String("status", string(app.Status)),
		slog.String("reason", app.DecisionReason))

	p.afterDecision(ctx, app, time.Since(start))
	return nil
}

// HandleFailure turns an aborted run, such as a recovered panic, into a
// system-error rejection when the application is not yet terminal.
func (p *ApplicationProcessor) HandleFailure(ctx context.Context, applicationID string, cause error) {
	start := time.Now()
	p.logger.ErrorContext(ctx, "Application processing aborted",
		slog.String("application_id", applicationID),
		slog.String("error", cause.Error()))

	id, err := uuid.Parse(applicationID)
	if err != nil {
		return
	}
	app, err := p.appRepo.GetByID(ctx, id)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to load aborted application",
			slog.String("application_id", applicationID),
			slog.String("error", err.Error()))
		return
	}
	if app.Status.IsTerminal() {
		return
	}
	if app.Status == domain.StatusPending {
		if err := app.StartReview(p.now()); err != nil {
			return
		}
		if err := p.appRepo.Update(ctx, app); err != nil {
			p.logger.ErrorContext(ctx, "Failed to move aborted application into review",
				slog.String("application_id", applicationID),
				slog.String("error", err.Error()))
			return
		}
	}

	if err := p.decide(ctx, app, rejection(domain.ReasonSystemError), start); err != nil {
		p.logger.ErrorContext(ctx, "Failed to reject aborted application",
			slog.String("application_id", applicationID),
			slog.String("error", err.Error()))
	}
}

func (p *ApplicationProcessor) afterDecision(ctx context.Context, app *domain.Application, elapsed time.Duration) {
	p.metrics.RecordDecision(app.Status, app.CardType, app.RiskScore, elapsed)

	outcome := stats.Outcome{Status: string(app.Status), CardType: string(app.CardType), At: p.now()}
	if err := p.stats.Record(ctx, outcome); err != nil {
		p.logger.WarnContext(ctx, "Failed to record decision stats",
			slog.String("application_id", app.ID.String()),
			slog.String("error", err.Error()))
	}

	if err := p.notifier.NotifyDecision(ctx, app); err != nil {
		p.logger.WarnContext(ctx, "Failed to queue decision notification",
			slog.String("application_id", app.ID.String()),
			slog.String("error", err.Error()))
	}
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, stats.Outcome) error { return nil }

type noopNotifier struct{}

func (noopNotifier) NotifyDecision(context.Context, *domain.Application) error { return nil }

type noopMetrics struct{}

func (noopMetrics) RecordDecision(domain.ApplicationStatus, domain.CardType, *decimal.Decimal, time.Duration) {
}

func (noopMetrics) RecordStageFailure(string) {}
