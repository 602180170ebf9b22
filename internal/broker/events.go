package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventWriter is the transport behind EventPublisher.
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	writer EventWriter
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(writer EventWriter) *EventPublisher {
	return &EventPublisher{writer: writer}
}

func stamp(base *models.BaseEvent, eventType string) {
	if base.EventID == "" {
		base.EventID = uuid.New().String()
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now().UTC()
	}
	base.EventType = eventType
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

func returnKey(returnID int64) string {
	return fmt.Sprintf("return-%d", returnID)
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeOrderPlaced)
	return ep.writer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	stamp(&event.BaseEvent, models.EventTypeOrderCancelled)
	return ep.writer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeOrderStatusChanged)
	return ep.writer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishReturnCreated publishes ReturnCreated event
func (ep *EventPublisher) PublishReturnCreated(ctx context.Context, event *models.ReturnCreatedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeReturnCreated)
	return ep.writer.PublishEvent(ctx, returnKey(event.ReturnID), event)
}

// PublishReturnStatusChanged publishes ReturnStatusChanged event
func (ep *EventPublisher) PublishReturnStatusChanged(ctx context.Context, event *models.ReturnStatusChangedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeReturnStatusChanged)
	return ep.writer.PublishEvent(ctx, returnKey(event.ReturnID), event)
}

// PublishReturnRestocked publishes ReturnRestocked event
func (ep *EventPublisher) PublishReturnRestocked(ctx context.Context, event *models.ReturnRestockedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeReturnRestocked)
	return ep.writer.PublishEvent(ctx, returnKey(event.ReturnID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderPlaced     func(context.Context, *models.OrderPlacedEvent) error
	onOrderCancelled  func(context.Context, *models.OrderCancelledEvent) error
	onReturnRestocked func(context.Context, *models.ReturnRestockedEvent) error
	logger            *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.Named("kafka")}
}

func (eh *EventHandler) OnOrderPlaced(handler func(context.Context, *models.OrderPlacedEvent) error) {
	eh.onOrderPlaced = handler
}

func (eh *EventHandler) OnOrderCancelled(handler func(context.Context, *models.OrderCancelledEvent) error) {
	eh.onOrderCancelled = handler
}

func (eh *EventHandler) OnReturnRestocked(handler func(context.Context, *models.ReturnRestockedEvent) error) {
	eh.onReturnRestocked = handler
}

// HandleMessage routes messages to appropriate handlers. Event types without a
// registered handler are acknowledged and skipped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderPlaced:
		if eh.onOrderPlaced != nil {
			var event models.OrderPlacedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderPlaced event: %w", err)
			}
			return eh.onOrderPlaced(ctx, &event)
		}

	case models.EventTypeOrderCancelled:
		if eh.onOrderCancelled != nil {
			var event models.OrderCancelledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCancelled event: %w", err)
			}
			return eh.onOrderCancelled(ctx, &event)
		}

	case models.EventTypeReturnRestocked:
		if eh.onReturnRestocked != nil {
			var event models.ReturnRestockedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReturnRestocked event: %w", err)
			}
			return eh.onReturnRestocked(ctx, &event)
		}
	}

	return nil
}
