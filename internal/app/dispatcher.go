package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ravito/ravito-backend/internal/domain"
	"github.com/ravito/ravito-backend/pkg/webpush"
)

const dispatchTimeout = 30 * time.Second

// RealtimeHub delivers a payload to every open websocket of a user and reports how
// many connections received it.
type RealtimeHub interface {
	SendToUser(userID string, payload interface{}) int
}

// PushSender delivers an encrypted payload to one browser push endpoint.
type PushSender interface {
	Send(ctx context.Context, endpoint, p256dh, auth string, payload []byte) error
}

// PushSubscriptionStore is the storage used to fan a notification out to browsers.
type PushSubscriptionStore interface {
	ListPushSubscriptions(ctx context.Context, userID string) ([]domain.PushSubscription, error)
	DeletePushSubscriptionByEndpoint(ctx context.Context, endpoint string) error
}

// RealtimeMessage is the frame written to websocket clients.
type RealtimeMessage struct {
	Type         string              `json:"type"`
	Notification domain.Notification `json:"notification"`
}

// pushPayload is what the service worker receives.
type pushPayload struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Title   string                 `json:"title"`
	Body    string                 `json:"body"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Created time.Time              `json:"created_at"`
}

// Dispatcher delivers stored notifications to websockets and browser push.
type Dispatcher struct {
	hub    RealtimeHub
	push   PushSender
	subs   PushSubscriptionStore
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. hub and push may be nil when the matching
// channel is disabled.
func NewDispatcher(hub RealtimeHub, push PushSender, subs PushSubscriptionStore, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{hub: hub, push: push, subs: subs, logger: logger}
}

// HandleNotificationCreated processes a notification.created message. It returns false
// only when the push subscriptions could not be loaded, so the message is requeued.
func (d *Dispatcher) HandleNotificationCreated(body []byte) bool {
	var event domain.NotificationCreatedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		d.logger.Error("malformed notification.created event", "error", err)
		return true
	}
	if event.Notification.UserID == "" {
		d.logger.Warn("notification.created event without user", "notification_id", event.Notification.ID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	return d.Dispatch(ctx, event.Notification) == nil
}

// Dispatch delivers n to the user's live connections and push subscriptions.
func (d *Dispatcher) Dispatch(ctx context.Context, n domain.Notification) error {
	if d.hub != nil {
		delivered := d.hub.SendToUser(n.UserID, RealtimeMessage{Type: "notification", Notification: n})
		d.logger.Debug("realtime delivery", "user_id", n.UserID, "notification_id", n.ID, "connections", delivered)
	}

	if d.push == nil || d.subs == nil {
		return nil
	}

	subs, err := d.subs.ListPushSubscriptions(ctx, n.UserID)
	if err != nil {
		d.logger.Error("failed to load push subscriptions", "user_id", n.UserID, "error", err)
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(pushPayload{
		ID:      n.ID,
		Type:    n.Type,
		Title:   n.Title,
		Body:    n.Message,
		Data:    n.Data,
		Created: n.CreatedAt,
	})
	if err != nil {
		d.logger.Error("failed to encode push payload", "notification_id", n.ID, "error", err)
		return nil
	}

	for _, sub := range subs {
		err := d.push.Send(ctx, sub.Endpoint, sub.P256dh, sub.Auth, payload)
		switch {
		case err == nil:
		case errors.Is(err, webpush.ErrSubscriptionExpired):
			if delErr := d.subs.DeletePushSubscriptionByEndpoint(ctx, sub.Endpoint); delErr != nil {
				d.logger.Warn("failed to delete expired push subscription", "subscription_id", sub.ID, "error", delErr)
				continue
			}
			d.logger.Info("deleted expired push subscription", "user_id", n.UserID, "subscription_id", sub.ID)
		default:
			d.logger.Warn("push delivery failed", "user_id", n.UserID, "subscription_id", sub.ID, "error", err)
		}
	}
	return nil
}

// InProcessPublisher stands in for the broker when RabbitMQ is unavailable: it hands
// notification.created events straight to the dispatcher and logs every other event.
type InProcessPublisher struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewInProcessPublisher(dispatcher *Dispatcher, logger *slog.Logger) *InProcessPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessPublisher{dispatcher: dispatcher, logger: logger}
}

func (p *InProcessPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if routingKey != domain.EventNotificationCreated || p.dispatcher == nil {
		p.logger.Info("event not published", "mode", "fallback", "exchange", exchange, "routing_key", routingKey)
		return nil
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	go p.dispatcher.HandleNotificationCreated(encoded)
	return nil
}
