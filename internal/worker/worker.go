package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// MessageSource feeds kafka messages to a handler until ctx ends.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// StockEventHandler applies stock-affecting events.
type StockEventHandler interface {
	HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	HandleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	HandleReturnRestocked(ctx context.Context, event *models.ReturnRestockedEvent) error
}

// StockCacheWorker keeps the redis stock cache in step with domain events
type StockCacheWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStockCacheWorker creates a new stock cache worker
func NewStockCacheWorker(consumer MessageSource, stock StockEventHandler) *StockCacheWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnOrderPlaced(stock.HandleOrderPlaced)
	eventHandler.OnOrderCancelled(stock.HandleOrderCancelled)
	eventHandler.OnReturnRestocked(stock.HandleReturnRestocked)

	return &StockCacheWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.Named("stock-worker"),
	}
}

// Start starts the worker
func (w *StockCacheWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock cache worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockCacheWorker) Stop() error {
	w.logger.Info("Stopping stock cache worker...")
	return w.consumer.Close()
}
