package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"card_underwriting/internal/dispatcher"
	"card_underwriting/internal/domain"
	"card_underwriting/internal/repository"

	"github.com/robfig/cron/v3"
)

// DefaultMonitorSchedule runs the pending sweep every minute.
const DefaultMonitorSchedule = "@every 1m"

type PendingGauges interface {
	SetPendingApplications(n int)
	UpdateDispatcher(queued, running, workers int)
}

type MonitoredDispatcher interface {
	Dispatcher
	Stats() dispatcher.Stats
}

// PendingMonitor periodically reports backlog gauges and re-offers PENDING
// applications that were never scheduled or were abandoned at shutdown.
type PendingMonitor struct {
	cron         *cron.Cron
	schedule     string
	staleAfter   time.Duration
	applications repository.ApplicationRepository
	dispatcher   MonitoredDispatcher
	gauges       PendingGauges
	now          func() time.Time
	logger       *slog.Logger
}

func NewPendingMonitor(
	applications repository.ApplicationRepository,
	dispatcher MonitoredDispatcher,
	gauges PendingGauges,
	schedule string,
	staleAfter time.Duration,
	logger *slog.Logger,
) *PendingMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule == "" {
		schedule = DefaultMonitorSchedule
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))

	return &PendingMonitor{
		cron:         cron.New(cron.WithChain(cron.Recover(cronLogger))),
		schedule:     schedule,
		staleAfter:   staleAfter,
		applications: applications,
		dispatcher:   dispatcher,
		gauges:       gauges,
		now:          time.Now,
		logger:       logger,
	}
}

func (m *PendingMonitor) Start() error {
	if _, err := m.cron.AddFunc(m.schedule, func() { m.RunOnce(context.Background()) }); err != nil {
		m.logger.Error("failed to schedule pending monitor", "error", err)
		return err
	}
	m.logger.Info("scheduled pending monitor", "schedule", m.schedule)
	m.cron.Start()
	return nil
}

// Stop halts the schedule. The returned context is done once a running sweep finishes.
func (m *PendingMonitor) Stop() context.Context {
	return m.cron.Stop()
}

// RunOnce performs a single sweep and returns how many applications were
// handed back to the dispatcher.
func (m *PendingMonitor) RunOnce(ctx context.Context) int {
	s := m.dispatcher.Stats()
	m.gauges.UpdateDispatcher(s.Queued, s.Running, s.Workers)

	pending, err := m.applications.GetByStatus(ctx, domain.StatusPending)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to list pending applications", "error", err)
		return 0
	}
	m.gauges.SetPendingApplications(len(pending))

	if m.staleAfter <= 0 {
		return 0
	}

	cutoff := m.now().Add(-m.staleAfter)
	resubmitted := 0
	for _, app := range pending {
		if app.CreatedAt.After(cutoff) {
			continue
		}
		err := m.dispatcher.Submit(app.ID.String())
		switch {
		case err == nil:
			resubmitted++
		case errors.Is(err, dispatcher.ErrAlreadyScheduled):
		case errors.Is(err, dispatcher.ErrBackpressure), errors.Is(err, dispatcher.ErrDispatcherClosed):
			m.logger.WarnContext(ctx, "stopping pending sweep", "error", err, "resubmitted", resubmitted)
			return resubmitted
		default:
			m.logger.ErrorContext(ctx, "failed to resubmit application",
				"application_id", app.ID.String(), "error", err)
		}
	}

	if resubmitted > 0 {
		m.logger.InfoContext(ctx, "resubmitted stale pending applications", "count", resubmitted)
	}
	return resubmitted
}
