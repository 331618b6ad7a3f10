package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ravito/ravito-backend/internal/domain"
)

const (
	defaultNotificationPageSize = 20
	maxNotificationPageSize     = 100
)

// NotificationRepository defines the inbox and push subscription storage operations.
type NotificationRepository interface {
	InsertNotification(ctx context.Context, n domain.Notification) (*domain.Notification, error)
	ListNotifications(ctx context.Context, userID string, opts domain.NotificationListOptions) ([]domain.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) (*domain.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, notificationID string) error
	UpsertPushSubscription(ctx context.Context, sub domain.PushSubscription) (*domain.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, userID, endpoint string) error
}

// NotificationService stores in-app notifications and announces them for delivery.
type NotificationService struct {
	repo   NotificationRepository
	events events
	now    func() time.Time
}

// NewNotificationService creates the notification service.
func NewNotificationService(repo NotificationRepository, publisher EventPublisher, exchange string) *NotificationService {
	return &NotificationService{
		repo:   repo,
		events: events{publisher: publisher, exchange: exchange},
		now:    time.Now,
	}
}

// PushSubscriptionInput is the browser PushSubscription JSON.
type PushSubscriptionInput struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
	UserAgent *string `json:"user_agent,omitempty"`
}

// Notify stores n and publishes notification.created. Delivery to websockets and
// browsers happens in the dispatcher consuming that event.
func (s *NotificationService) Notify(ctx context.Context, n domain.Notification) (*domain.Notification, error) {
	n.UserID = strings.TrimSpace(n.UserID)
	n.Title = strings.TrimSpace(n.Title)
	if n.UserID == "" || n.Type == "" || n.Title == "" {
		return nil, fmt.Errorf("%w: notification needs a user, a type and a title", ErrInvalidInput)
	}

	stored, err := s.repo.InsertNotification(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}

	s.events.publish(ctx, domain.EventNotificationCreated, domain.NotificationCreatedEvent{
		Notification: *stored,
		Timestamp:    s.now().UTC(),
	})
	return stored, nil
}

// List returns a page of the user's inbox.
func (s *NotificationService) List(ctx context.Context, userID string, opts domain.NotificationListOptions) ([]domain.Notification, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultNotificationPageSize
	}
	if opts.Limit > maxNotificationPageSize {
		opts.Limit = maxNotificationPageSize
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return s.repo.ListNotifications(ctx, userID, opts)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnreadNotifications(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*domain.Notification, error) {
	return s.repo.MarkNotificationRead(ctx, userID, notificationID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllNotificationsRead(ctx, userID)
}

func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	return s.repo.DeleteNotification(ctx, userID, notificationID)
}

// SubscribePush registers a browser endpoint for the user. Re-subscribing an endpoint
// moves it to the new user and refreshes its keys.
func (s *NotificationService) SubscribePush(ctx context.Context, userID string, in PushSubscriptionInput) (*domain.PushSubscription, error) {
	endpoint := strings.TrimSpace(in.Endpoint)
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme != "https" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: push endpoint must be an https URL", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Keys.P256dh) == "" || strings.TrimSpace(in.Keys.Auth) == "" {
		return nil, fmt.Errorf("%w: push keys are required", ErrInvalidInput)
	}

	return s.repo.UpsertPushSubscription(ctx, domain.PushSubscription{
		UserID:    userID,
		Endpoint:  endpoint,
		P256dh:    strings.TrimSpace(in.Keys.P256dh),
		Auth:      strings.TrimSpace(in.Keys.Auth),
		UserAgent: in.UserAgent,
	})
}

// UnsubscribePush removes one of the user's endpoints.
func (s *NotificationService) UnsubscribePush(ctx context.Context, userID, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidInput)
	}
	return s.repo.DeletePushSubscription(ctx, userID, endpoint)
}
