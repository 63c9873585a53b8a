package worker

import (
	"context"
	"fmt"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// OrderArchive is the server-side order history. *store.Store implements it.
type OrderArchive interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	SaveOrderRecord(ctx context.Context, sessionID, userID string, rec models.OrderRecord) error
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// OrderArchiveWorker copies placed orders from ORDER_PLACED events into the
// order archive
type OrderArchiveWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	archive      OrderArchive
	logger       *zap.Logger
}

// NewOrderArchiveWorker creates a new order archive worker
func NewOrderArchiveWorker(consumer *broker.Consumer, archive OrderArchive) *OrderArchiveWorker {
	w := &OrderArchiveWorker{
		consumer: consumer,
		archive:  archive,
		logger:   util.GetLogger(),
	}

	w.eventHandler = broker.NewEventHandler()
	w.eventHandler.OnOrderPlaced(w.HandleOrderPlaced)
	return w
}

// Start starts the worker
func (w *OrderArchiveWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order archive worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderArchiveWorker) Stop() error {
	w.logger.Info("Stopping order archive worker")
	return w.consumer.Close()
}

// HandleOrderPlaced archives the order once per event id
func (w *OrderArchiveWorker) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	ctx, span := util.StartSpan(ctx, "OrderArchiveWorker.HandleOrderPlaced")
	defer span.End()

	processed, err := w.archive.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event %s: %w", event.EventID, err)
	}
	if processed {
		w.logger.Debug("Skipping processed event", zap.String("event_id", event.EventID))
		return nil
	}

	if err := w.archive.SaveOrderRecord(ctx, event.SessionID, event.UserID, event.Order); err != nil {
		return fmt.Errorf("failed to archive order %s: %w", event.Order.ID, err)
	}
	if err := w.archive.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event %s: %w", event.EventID, err)
	}

	w.logger.Info("Order archived",
		zap.String("order_id", event.Order.ID),
		zap.String("session_id", event.SessionID))
	return nil
}
