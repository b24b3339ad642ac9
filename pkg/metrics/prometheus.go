package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"card_underwriting/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const (
	SubmissionAccepted     = "accepted"
	SubmissionDuplicate    = "duplicate"
	SubmissionBackpressure = "backpressure"
	SubmissionInvalid      = "invalid"
)

type MetricsCollector struct {
	registry              *prometheus.Registry
	submissions           *prometheus.CounterVec
	decisions             *prometheus.CounterVec
	stageFailures         *prometheus.CounterVec
	decisionDuration      prometheus.Histogram
	riskScoreDistribution prometheus.Histogram
	dispatcherQueued      prometheus.Gauge
	dispatcherRunning     prometheus.Gauge
	dispatcherWorkers     prometheus.Gauge
	pendingApplications   prometheus.Gauge
	logger                *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &MetricsCollector{
		registry: registry,
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "applications_submitted_total",
			Help: "Application submissions by outcome",
		}, []string{"outcome"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "applications_decided_total",
			Help: "Terminal underwriting decisions",
		}, []string{"status", "card_type"}),
		stageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "underwriting_stage_failures_total",
			Help: "Pipeline stage failures converted into system-error rejections",
		}, []string{"stage"}),
		decisionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "underwriting_duration_seconds",
			Help:    "Time from review start to terminal decision",
			Buckets: prometheus.DefBuckets,
		}),
		riskScoreDistribution: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "underwriting_risk_score_distribution",
			Help:    "Distribution of computed risk scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 75, 90, 100},
		}),
		dispatcherQueued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dispatcher_queued_tasks",
			Help: "Tasks waiting in the dispatcher backlog",
		}),
		dispatcherRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dispatcher_running_tasks",
			Help: "Tasks currently executing",
		}),
		dispatcherWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dispatcher_workers",
			Help: "Live dispatcher workers, core and burst",
		}),
		pendingApplications: factory.NewGauge(prometheus.GaugeOpts{
			Name: "applications_pending",
			Help: "Applications currently in PENDING status",
		}),
		logger: logger,
	}
}

func (m *MetricsCollector) RecordSubmission(outcome string) {
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *MetricsCollector) RecordDecision(status domain.ApplicationStatus, cardType domain.CardType, riskScore *decimal.Decimal, duration time.Duration) {
	m.decisions.WithLabelValues(string(status), string(cardType)).Inc()
	m.decisionDuration.Observe(duration.Seconds())
	if riskScore != nil {
		m.riskScoreDistribution.Observe(riskScore.InexactFloat64())
	}
}

func (m *MetricsCollector) RecordStageFailure(stage string) {
	m.stageFailures.WithLabelValues(stage).Inc()
}

func (m *MetricsCollector) UpdateDispatcher(queued, running, workers int) {
	m.dispatcherQueued.Set(float64(queued))
	m.dispatcherRunning.Set(float64(running))
	m.dispatcherWorkers.Set(float64(workers))
}

func (m *MetricsCollector) SetPendingApplications(n int) {
	m.pendingApplications.Set(float64(n))
}

func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}
