package app

import (
	"context"
	"errors"
	"testing"

	"github.com/ravito/ravito-backend/internal/domain"
)

type notificationRepoStub struct {
	NotificationRepository

	inserted  []domain.Notification
	listOpts  domain.NotificationListOptions
	upserted  []domain.PushSubscription
	insertErr error
}

func (s *notificationRepoStub) InsertNotification(ctx context.Context, n domain.Notification) (*domain.Notification, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	n.ID = "notif-1"
	s.inserted = append(s.inserted, n)
	return &n, nil
}

func (s *notificationRepoStub) ListNotifications(ctx context.Context, userID string, opts domain.NotificationListOptions) ([]domain.Notification, error) {
	s.listOpts = opts
	return nil, nil
}

func (s *notificationRepoStub) UpsertPushSubscription(ctx context.Context, sub domain.PushSubscription) (*domain.PushSubscription, error) {
	s.upserted = append(s.upserted, sub)
	return &sub, nil
}

func TestNotifyStoresAndPublishes(t *testing.T) {
	repo := &notificationRepoStub{}
	publisher := &publisherStub{}
	svc := NewNotificationService(repo, publisher, "ravito.events")

	stored, err := svc.Notify(context.Background(), domain.Notification{
		UserID:  " user-1 ",
		Type:    domain.NotificationWelcome,
		Title:   "Bienvenue",
		Message: "Votre compte est prêt.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.ID != "notif-1" || stored.UserID != "user-1" {
		t.Fatalf("unexpected stored notification %+v", stored)
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != domain.EventNotificationCreated {
		t.Fatalf("expected notification.created event, got %v", publisher.routingKeys)
	}
	event, ok := publisher.bodies[0].(domain.NotificationCreatedEvent)
	if !ok || event.Notification.ID != "notif-1" {
		t.Fatalf("unexpected event body %#v", publisher.bodies[0])
	}
}

func TestNotifyRejectsIncompleteNotification(t *testing.T) {
	repo := &notificationRepoStub{}
	svc := NewNotificationService(repo, nil, "ravito.events")

	_, err := svc.Notify(context.Background(), domain.Notification{UserID: "user-1", Type: domain.NotificationWelcome})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(repo.inserted) != 0 {
		t.Fatalf("expected nothing stored")
	}
}

func TestNotifyDoesNotPublishWhenInsertFails(t *testing.T) {
	repo := &notificationRepoStub{insertErr: errors.New("db down")}
	publisher := &publisherStub{}
	svc := NewNotificationService(repo, publisher, "ravito.events")

	if _, err := svc.Notify(context.Background(), domain.Notification{UserID: "u", Type: "t", Title: "x"}); err == nil {
		t.Fatalf("expected an error")
	}
	if len(publisher.routingKeys) != 0 {
		t.Fatalf("expected no event, got %v", publisher.routingKeys)
	}
}

func TestListClampsPageSize(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		offset    int
		wantLimit int
		wantOff   int
	}{
		{name: "default", limit: 0, wantLimit: defaultNotificationPageSize},
		{name: "capped", limit: 1000, wantLimit: maxNotificationPageSize},
		{name: "kept", limit: 10, offset: 30, wantLimit: 10, wantOff: 30},
		{name: "negative offset", limit: 10, offset: -5, wantLimit: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &notificationRepoStub{}
			svc := NewNotificationService(repo, nil, "ravito.events")
			if _, err := svc.List(context.Background(), "user-1", domain.NotificationListOptions{Limit: tt.limit, Offset: tt.offset}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if repo.listOpts.Limit != tt.wantLimit || repo.listOpts.Offset != tt.wantOff {
				t.Fatalf("expected limit %d offset %d, got %+v", tt.wantLimit, tt.wantOff, repo.listOpts)
			}
		})
	}
}

func TestSubscribePushValidatesEndpoint(t *testing.T) {
	valid := PushSubscriptionInput{Endpoint: "https://fcm.googleapis.com/fcm/send/abc"}
	valid.Keys.P256dh = "BNcR"
	valid.Keys.Auth = "tBHI"

	insecure := valid
	insecure.Endpoint = "http://push.example.com/abc"

	missingKeys := valid
	missingKeys.Keys.Auth = ""

	tests := []struct {
		name    string
		input   PushSubscriptionInput
		wantErr bool
	}{
		{name: "valid", input: valid},
		{name: "not https", input: insecure, wantErr: true},
		{name: "missing auth key", input: missingKeys, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &notificationRepoStub{}
			svc := NewNotificationService(repo, nil, "ravito.events")

			sub, err := svc.SubscribePush(context.Background(), "user-1", tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sub.UserID != "user-1" || sub.P256dh != "BNcR" {
				t.Fatalf("unexpected subscription %+v", sub)
			}
		})
	}
}
