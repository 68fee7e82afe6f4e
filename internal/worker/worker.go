package worker

import (
	"context"
	"fmt"
	"time"

	"cart-sync/internal/broker"
	"cart-sync/internal/models"
	"cart-sync/internal/util"

	"go.uber.org/zap"
)

// EventLedger records which events have been applied
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// SummaryWriter stores versioned profile summaries
type SummaryWriter interface {
	SetSummary(ctx context.Context, summary models.ProfileSummary, version int64, ttl time.Duration) (bool, error)
}

// SummaryWorker keeps per-user profile summaries in step with cart changes
type SummaryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	ledger       EventLedger
	summaries    SummaryWriter
	ttl          time.Duration
	logger       *zap.Logger
}

// NewSummaryWorker creates a new summary worker
func NewSummaryWorker(
	consumer *broker.Consumer,
	ledger EventLedger,
	summaries SummaryWriter,
	ttl time.Duration,
) *SummaryWorker {
	w := &SummaryWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		ledger:       ledger,
		summaries:    summaries,
		ttl:          ttl,
		logger:       util.ComponentLogger("summary-worker"),
	}
	w.eventHandler.OnCartUpdated(w.HandleCartUpdated)
	return w
}

// Start starts the worker
func (w *SummaryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting summary worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SummaryWorker) Stop() error {
	w.logger.Info("Stopping summary worker")
	return w.consumer.Close()
}

// HandleCartUpdated applies one CartUpdated event. Redelivered events and
// events older than the stored summary are skipped.
func (w *SummaryWorker) HandleCartUpdated(ctx context.Context, event *models.CartUpdatedEvent) error {
	ctx, span := util.StartSpan(ctx, "SummaryWorker.HandleCartUpdated")
	defer span.End()

	processed, err := w.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		util.SummaryUpdatesTotal.WithLabelValues("duplicate").Inc()
		w.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	written, err := w.summaries.SetSummary(ctx, event.Summary(), event.Version, w.ttl)
	if err != nil {
		util.RecordError(span, err)
		util.SummaryUpdatesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to store summary: %w", err)
	}
	if written {
		util.SummaryUpdatesTotal.WithLabelValues("applied").Inc()
	} else {
		util.SummaryUpdatesTotal.WithLabelValues("stale").Inc()
		w.logger.Debug("Stale cart event skipped",
			zap.String("user_id", event.UserID),
			zap.Int64("version", event.Version))
	}

	if err := w.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
