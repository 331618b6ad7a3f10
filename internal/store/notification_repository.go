package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ravito/ravito-backend/internal/domain"
)

const notificationColumns = `id, user_id, type, title, message, data, is_read, read_at, created_at`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n    domain.Notification
		data []byte
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data, &n.IsRead, &n.ReadAt, &n.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("failed to decode notification data: %w", err)
		}
	}
	return &n, nil
}

// InsertNotification stores a notification and returns the persisted row.
func (r *Repository) InsertNotification(ctx context.Context, n domain.Notification) (*domain.Notification, error) {
	var data []byte
	if n.Data != nil {
		encoded, err := json.Marshal(n.Data)
		if err != nil {
			return nil, err
		}
		data = encoded
	}

	query := `
		INSERT INTO notifications (user_id, type, title, message, data)
		VALUES ($1, $2, $3, $4, $5::JSONB)
		RETURNING ` + notificationColumns
	return scanNotification(r.db.QueryRow(ctx, query, n.UserID, n.Type, n.Title, n.Message, nullableJSON(data)))
}

// ListNotifications returns the user's notifications, newest first.
func (r *Repository) ListNotifications(ctx context.Context, userID string, opts domain.NotificationListOptions) ([]domain.Notification, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`)
	args := []interface{}{userID}

	if opts.UnreadOnly {
		sb.WriteString(" AND is_read = FALSE")
	}
	if opts.Type != "" {
		args = append(args, opts.Type)
		fmt.Fprintf(&sb, " AND type = $%d", len(args))
	}
	args = append(args, opts.Limit, opts.Offset)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

// CountUnreadNotifications returns how many notifications the user has not read.
func (r *Repository) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&count)
	return count, err
}

// MarkNotificationRead flags one of the user's notifications as read.
func (r *Repository) MarkNotificationRead(ctx context.Context, userID, notificationID string) (*domain.Notification, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2
		RETURNING ` + notificationColumns
	return scanNotification(r.db.QueryRow(ctx, query, notificationID, userID))
}

// MarkAllNotificationsRead flags every unread notification of the user as read.
func (r *Repository) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE, read_at = NOW() WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteNotification removes one of the user's notifications.
func (r *Repository) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, notificationID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// UpsertPushSubscription registers a browser endpoint for the user. An endpoint already
// known is reassigned to the latest user.
func (r *Repository) UpsertPushSubscription(ctx context.Context, sub domain.PushSubscription) (*domain.PushSubscription, error) {
	var saved domain.PushSubscription
	err := r.db.QueryRow(ctx, `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    p256dh = EXCLUDED.p256dh,
		    auth = EXCLUDED.auth,
		    user_agent = EXCLUDED.user_agent
		RETURNING id, user_id, endpoint, p256dh, auth, user_agent, created_at
	`, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth, sub.UserAgent).Scan(
		&saved.ID, &saved.UserID, &saved.Endpoint, &saved.P256dh, &saved.Auth, &saved.UserAgent, &saved.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// DeletePushSubscription removes the user's subscription for endpoint.
func (r *Repository) DeletePushSubscription(ctx context.Context, userID, endpoint string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`, userID, endpoint)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// DeletePushSubscriptionByEndpoint drops an endpoint the push service reported as gone.
func (r *Repository) DeletePushSubscriptionByEndpoint(ctx context.Context, endpoint string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}

// ListPushSubscriptions returns every endpoint registered by the user.
func (r *Repository) ListPushSubscriptions(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, endpoint, p256dh, auth, user_agent, created_at
		FROM push_subscriptions
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.PushSubscription
	for rows.Next() {
		var s domain.PushSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.UserAgent, &s.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func nullableJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
