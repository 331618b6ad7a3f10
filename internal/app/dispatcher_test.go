package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ravito/ravito-backend/internal/domain"
	"github.com/ravito/ravito-backend/pkg/webpush"
)

type hubStub struct {
	mu        sync.Mutex
	delivered map[string][]interface{}
	signal    chan struct{}
}

func newHubStub() *hubStub {
	return &hubStub{delivered: map[string][]interface{}{}, signal: make(chan struct{}, 4)}
}

func (h *hubStub) SendToUser(userID string, payload interface{}) int {
	h.mu.Lock()
	h.delivered[userID] = append(h.delivered[userID], payload)
	h.mu.Unlock()
	h.signal <- struct{}{}
	return 1
}

type pushSenderStub struct {
	results map[string]error
	sent    []string
}

func (p *pushSenderStub) Send(ctx context.Context, endpoint, p256dh, auth string, payload []byte) error {
	p.sent = append(p.sent, endpoint)
	return p.results[endpoint]
}

type subscriptionStoreStub struct {
	subs    []domain.PushSubscription
	listErr error
	deleted []string
}

func (s *subscriptionStoreStub) ListPushSubscriptions(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	return s.subs, s.listErr
}

func (s *subscriptionStoreStub) DeletePushSubscriptionByEndpoint(ctx context.Context, endpoint string) error {
	s.deleted = append(s.deleted, endpoint)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func notificationEvent(t *testing.T, n domain.Notification) []byte {
	t.Helper()
	body, err := json.Marshal(domain.NotificationCreatedEvent{Notification: n, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("failed to encode event: %v", err)
	}
	return body
}

func TestDispatcherDeliversAndPrunesExpiredSubscriptions(t *testing.T) {
	hub := newHubStub()
	push := &pushSenderStub{results: map[string]error{
		"https://push.example.com/gone":   webpush.ErrSubscriptionExpired,
		"https://push.example.com/broken": errors.New("timeout"),
	}}
	store := &subscriptionStoreStub{subs: []domain.PushSubscription{
		{ID: "s1", Endpoint: "https://push.example.com/ok"},
		{ID: "s2", Endpoint: "https://push.example.com/gone"},
		{ID: "s3", Endpoint: "https://push.example.com/broken"},
	}}
	d := NewDispatcher(hub, push, store, discardLogger())

	ok := d.HandleNotificationCreated(notificationEvent(t, domain.Notification{ID: "n1", UserID: "user-1", Type: "welcome", Title: "Bienvenue"}))
	if !ok {
		t.Fatalf("expected the message to be acknowledged")
	}
	if len(hub.delivered["user-1"]) != 1 {
		t.Fatalf("expected one realtime delivery, got %d", len(hub.delivered["user-1"]))
	}
	msg, isMsg := hub.delivered["user-1"][0].(RealtimeMessage)
	if !isMsg || msg.Notification.ID != "n1" || msg.Type != "notification" {
		t.Fatalf("unexpected realtime payload %#v", hub.delivered["user-1"][0])
	}
	if len(push.sent) != 3 {
		t.Fatalf("expected push to every subscription, got %v", push.sent)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "https://push.example.com/gone" {
		t.Fatalf("expected only the expired subscription deleted, got %v", store.deleted)
	}
}

func TestDispatcherAcksMalformedEvents(t *testing.T) {
	d := NewDispatcher(newHubStub(), nil, nil, discardLogger())

	if !d.HandleNotificationCreated([]byte("{not json")) {
		t.Fatalf("expected malformed event to be acknowledged")
	}
}

func TestDispatcherRequeuesWhenSubscriptionsUnavailable(t *testing.T) {
	store := &subscriptionStoreStub{listErr: errors.New("db down")}
	d := NewDispatcher(nil, &pushSenderStub{}, store, discardLogger())

	if d.HandleNotificationCreated(notificationEvent(t, domain.Notification{ID: "n1", UserID: "user-1"})) {
		t.Fatalf("expected the message to be requeued")
	}
}

func TestInProcessPublisherDispatchesNotifications(t *testing.T) {
	hub := newHubStub()
	publisher := NewInProcessPublisher(NewDispatcher(hub, nil, nil, discardLogger()), discardLogger())

	if err := publisher.Publish(context.Background(), "ravito.events", domain.EventCommissionPaid, map[string]string{"id": "p1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := publisher.Publish(context.Background(), "ravito.events", domain.EventNotificationCreated, domain.NotificationCreatedEvent{
		Notification: domain.Notification{ID: "n1", UserID: "user-1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-hub.signal:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected in-process delivery")
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if len(hub.delivered["user-1"]) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(hub.delivered["user-1"]))
	}
}
