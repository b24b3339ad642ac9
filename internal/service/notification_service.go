package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"card_underwriting/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	DecisionExchange   = "card_application_events"
	DecisionRoutingKey = "application.decided"
)

var ErrNotificationQueueFull = errors.New("notification queue is full")

type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
}

type DecisionEvent struct {
	ApplicationID     string           `json:"application_id"`
	ApplicationNumber string           `json:"application_number"`
	CustomerRef       string           `json:"customer_ref"`
	Status            string           `json:"status"`
	CardType          string           `json:"card_type"`
	Reason            string           `json:"reason"`
	ApprovedLimit     *decimal.Decimal `json:"approved_limit,omitempty"`
	DecidedAt         *time.Time       `json:"decided_at,omitempty"`
}

// NotificationService publishes decision events from its own worker pool so
// a slow broker never holds up underwriting.
type NotificationService struct {
	publisher     Publisher
	fingerprinter TaxIDFingerprinter
	messageQueue  chan DecisionEvent
	workers       int
	shutdownChan  chan struct{}
	wg            sync.WaitGroup
	logger        *slog.Logger
}

func NewNotificationService(publisher Publisher, fingerprinter TaxIDFingerprinter, workers, queueSize int, logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}

	service := &NotificationService{
		publisher:     publisher,
		fingerprinter: fingerprinter,
		messageQueue:  make(chan DecisionEvent, queueSize),
		workers:       workers,
		shutdownChan:  make(chan struct{}),
		logger:        logger,
	}

	service.startWorkers()

	return service
}

// NotifyDecision queues an event for app without blocking.
func (s *NotificationService) NotifyDecision(ctx context.Context, app *domain.Application) error {
	event := DecisionEvent{
		ApplicationID:     app.ID.String(),
		ApplicationNumber: app.ApplicationNumber,
		CustomerRef:       s.fingerprinter.Fingerprint(app.TaxID()),
		Status:            string(app.Status),
		CardType:          string(app.CardType),
		Reason:            app.DecisionReason,
		ApprovedLimit:     app.ApprovedLimit,
		DecidedAt:         app.DecidedAt,
	}

	select {
	case s.messageQueue <- event:
		return nil
	default:
		s.logger.WarnContext(ctx, "Decision notification dropped",
			slog.String("application_id", event.ApplicationID))
		return ErrNotificationQueueFull
	}
}

func (s *NotificationService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *NotificationService) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case event := <-s.messageQueue:
			s.publish(event, id)
		case <-s.shutdownChan:
			// Flush whatever is still queued before exiting.
			for {
				select {
				case event := <-s.messageQueue:
					s.publish(event, id)
				default:
					return
				}
			}
		}
	}
}

func (s *NotificationService) publish(event DecisionEvent, workerID int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	startTime := time.Now()
	err := s.publisher.Publish(ctx, DecisionExchange, DecisionRoutingKey, event)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Failed to publish decision event",
			slog.String("application_id", event.ApplicationID),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
		return
	}
	s.logger.Info("Decision event published",
		slog.String("application_id", event.ApplicationID),
		slog.String("status", event.Status),
		slog.Int("worker_id", workerID),
		slog.Duration("duration", duration))
}

func (s *NotificationService) Shutdown(ctx context.Context) error {
	close(s.shutdownChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Notification service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogPublisher writes events to the log when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	p.logger.InfoContext(ctx, "Event",
		slog.String("exchange", exchange),
		slog.String("routing_key", routingKey),
		slog.Any("body", body))
	return nil
}
