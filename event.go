package creamery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nats-io/nats.go"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"goflare.io/creamery/catalog"
	"goflare.io/creamery/event"
	"goflare.io/creamery/models"
	"goflare.io/creamery/models/enum"
)

const (
	SubjectPaymentEvents      = "payment.service.event.>"
	SubjectCatalogEvents      = "catalog.product.>"
	SubjectOrderCreated       = "order.created"
	SubjectOrderStatusUpdated = "order.status.updated"

	catalogSubjectPrefix = "catalog.product."
)

// MessageBus is the part of *nats.Conn the event manager uses.
type MessageBus interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// OrderEvent is published when an order is placed or its status changes.
type OrderEvent struct {
	OrderID string           `json:"orderId"`
	UserID  string           `json:"userId"`
	Status  enum.OrderStatus `json:"status"`
	Order   *models.Order    `json:"order,omitempty"`
	At      time.Time        `json:"at"`
}

type EventHandler func(context.Context, *stripe.Event) error

type EventManager struct {
	bus      MessageBus
	mu       sync.RWMutex
	handlers map[stripe.EventType]EventHandler
	subs     []*nats.Subscription
	logger   *zap.Logger
}

var _ catalog.Publisher = (*EventManager)(nil)

func NewEventManager(bus MessageBus, logger *zap.Logger) *EventManager {
	return &EventManager{
		bus:      bus,
		handlers: make(map[stripe.EventType]EventHandler),
		logger:   logger,
	}
}

func (em *EventManager) RegisterHandler(eventType stripe.EventType, handler EventHandler) {
	em.mu.Lock()
	em.handlers[eventType] = handler
	em.mu.Unlock()
}

func (em *EventManager) GetHandler(eventType stripe.EventType) (EventHandler, bool) {
	em.mu.RLock()
	defer em.mu.RUnlock()
	handler, exists := em.handlers[eventType]
	return handler, exists
}

// PublishProductEvent sends a catalog change on catalog.product.{action}.
func (em *EventManager) PublishProductEvent(_ context.Context, e catalog.Event) error {
	return em.publish(catalogSubjectPrefix+string(e.Action), e)
}

func (em *EventManager) PublishOrderEvent(_ context.Context, subject string, e OrderEvent) error {
	return em.publish(subject, e)
}

func (em *EventManager) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", subject, err)
	}
	if err = em.bus.Publish(subject, data); err != nil {
		em.logger.Error("Failed to publish event", zap.String("subject", subject), zap.Error(err))
		return err
	}
	return nil
}

// SubscribeToEvents hands every payment event to the worker pool.
func (em *EventManager) SubscribeToEvents(ctx context.Context, wp *WorkerPool) error {
	sub, err := em.bus.Subscribe(SubjectPaymentEvents, func(msg *nats.Msg) {
		var event stripe.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			em.logger.Error("Failed to unmarshal event", zap.Error(err))
			return
		}

		if err := wp.Submit(ctx, &event); err != nil {
			em.logger.Warn("Dropped payment event", zap.String("event_id", event.ID), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	em.track(sub)
	return nil
}

// SubscribeToCatalog applies product changes made by other mirrors to c.
// Messages of one subscription are delivered in order, so they are applied
// on the delivery goroutine.
func (em *EventManager) SubscribeToCatalog(c *catalog.Catalog) error {
	sub, err := em.bus.Subscribe(SubjectCatalogEvents, func(msg *nats.Msg) {
		var e catalog.Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			em.logger.Error("Failed to unmarshal catalog event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		c.ApplyEvent(e)
	})
	if err != nil {
		return err
	}
	em.track(sub)
	return nil
}

// Close drops every subscription made by the manager.
func (em *EventManager) Close() {
	em.mu.Lock()
	subs := em.subs
	em.subs = nil
	em.mu.Unlock()

	for _, sub := range subs {
		if sub == nil {
			continue
		}
		if err := sub.Unsubscribe(); err != nil {
			em.logger.Warn("Failed to unsubscribe", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
}

func (em *EventManager) track(sub *nats.Subscription) {
	em.mu.Lock()
	em.subs = append(em.subs, sub)
	em.mu.Unlock()
}

func (s *service) registerEventHandlers() {
	eventHandlers := map[stripe.EventType]EventHandler{
		stripe.EventTypePaymentIntentSucceeded:     s.handlePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed: s.handlePaymentIntentFailed,
		stripe.EventTypePaymentIntentCanceled:      s.handlePaymentIntentFailed,
	}

	for eventType, handler := range eventHandlers {
		s.events.RegisterHandler(eventType, handler)
	}
}

func (s *service) handlePaymentIntentSucceeded(ctx context.Context, e *stripe.Event) error {
	s.logger.Info("Handling PaymentIntent succeeded event", zap.String("event_id", e.ID))
	return s.applyPaymentOutcome(ctx, e, enum.OrderStatusConfirmed)
}

func (s *service) handlePaymentIntentFailed(ctx context.Context, e *stripe.Event) error {
	s.logger.Info("Handling PaymentIntent failure event", zap.String("event_id", e.ID), zap.String("event_type", string(e.Type)))
	return s.applyPaymentOutcome(ctx, e, enum.OrderStatusCancelled)
}

// applyPaymentOutcome moves the order paid by the event's PaymentIntent to
// status. Orders that already left "Order Placed" are not touched.
func (s *service) applyPaymentOutcome(ctx context.Context, e *stripe.Event, status enum.OrderStatus) error {
	if e.Data == nil {
		return fmt.Errorf("event %s carries no data", e.ID)
	}
	var paymentIntent stripe.PaymentIntent
	if err := json.Unmarshal(e.Data.Raw, &paymentIntent); err != nil {
		s.logger.Error("Failed to unmarshal PaymentIntent", zap.Error(err))
		return err
	}

	var updated *models.Order
	err := s.transactionManager.ExecuteSerializableTransaction(ctx, func(tx pgx.Tx) error {
		updated = nil

		// 1. 根據 PaymentIntent ID 獲取訂單
		orderModel, err := s.order.GetOrderByPaymentIntentID(ctx, tx, paymentIntent.ID)
		if err != nil {
			s.logger.Error("Order not found for PaymentIntent", zap.String("payment_intent_id", paymentIntent.ID), zap.Error(err))
			return err
		}

		if orderModel.Status != enum.OrderStatusPlaced {
			s.logger.Info("Order already past payment", zap.String("order_id", orderModel.ID), zap.String("status", string(orderModel.Status)))
			return nil
		}

		// 2. 更新訂單狀態
		orderModel.Status = status
		orderModel.UpdatedAt = s.now()
		if err = s.order.UpdateOrderStatus(ctx, tx, orderModel.ID, status, orderModel.UpdatedAt); err != nil {
			s.logger.Error("Failed to update order status", zap.String("status", string(status)), zap.Error(err))
			return err
		}
		updated = orderModel
		return nil
	})
	if err != nil {
		return err
	}

	if updated != nil {
		// 3. 提交後才讓快取失效
		s.order.InvalidateOrder(ctx, updated.ID)
		s.logger.Info("Order status updated", zap.String("order_id", updated.ID), zap.String("status", string(status)))
		s.publishOrderEvent(ctx, SubjectOrderStatusUpdated, updated, false)
	}
	return nil
}

// ProcessEvent runs the handler of a Stripe event at most once. An event whose
// handler failed is retried on redelivery.
func (s *service) ProcessEvent(ctx context.Context, stripeEvent *stripe.Event) error {
	existing, err := s.event.GetByID(ctx, nil, stripeEvent.ID)
	switch {
	case err == nil && existing.Processed:
		s.logger.Info("Event already processed", zap.String("event_id", stripeEvent.ID))
		return nil
	case err != nil && !errors.Is(err, event.ErrEventNotFound):
		return fmt.Errorf("failed to look up event: %w", err)
	}

	handler, exists := s.events.GetHandler(stripeEvent.Type)
	if !exists {
		s.logger.Debug("No handler registered for event type", zap.String("event_type", string(stripeEvent.Type)))
		return nil
	}

	now := s.now()
	if err = s.event.Create(ctx, nil, &models.Event{
		ID:        stripeEvent.ID,
		Type:      stripeEvent.Type,
		Processed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return err
	}

	if err = handler(ctx, stripeEvent); err != nil {
		s.logger.Error("處理事件時出錯",
			zap.String("event_id", stripeEvent.ID),
			zap.String("event_type", string(stripeEvent.Type)),
			zap.Error(err),
		)
		return err
	}

	if err = s.event.MarkAsProcessed(ctx, nil, stripeEvent.ID, s.now()); err != nil {
		return err
	}

	s.logger.Info("Stripe event processed", zap.String("event_id", stripeEvent.ID))
	return nil
}

func (s *service) publishOrderEvent(ctx context.Context, subject string, o *models.Order, withOrder bool) {
	e := OrderEvent{
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  o.Status,
		At:      s.now(),
	}
	if withOrder {
		e.Order = o
	}
	if err := s.events.PublishOrderEvent(ctx, subject, e); err != nil {
		s.logger.Warn("Failed to publish order event", zap.String("subject", subject), zap.String("order_id", o.ID), zap.Error(err))
	}
}
