/**
 * @description
 * VAPID Web Push sender used by the notification dispatcher.
 *
 * @notes
 * - Push services answer 404 or 410 for subscriptions the browser dropped; those are
 *   reported as ErrSubscriptionExpired so callers can delete them.
 */
package webpush

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

var ErrSubscriptionExpired = errors.New("push subscription expired")

const defaultTTL = 24 * 60 * 60

// Config holds the VAPID key pair and contact subject.
type Config struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	TTL        int
}

// Sender delivers encrypted payloads to browser push endpoints.
type Sender struct {
	cfg        Config
	httpClient *http.Client
}

// NewSender returns a Sender, or an error when the VAPID keys are missing.
func NewSender(cfg Config) (*Sender, error) {
	cfg.PublicKey = strings.TrimSpace(cfg.PublicKey)
	cfg.PrivateKey = strings.TrimSpace(cfg.PrivateKey)
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("VAPID key pair is not configured")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return &Sender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Send pushes payload to one subscription.
func (s *Sender) Send(ctx context.Context, endpoint, p256dh, auth string, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: endpoint,
		Keys: webpush.Keys{
			P256dh: p256dh,
			Auth:   auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.cfg.Subject,
		VAPIDPublicKey:  s.cfg.PublicKey,
		VAPIDPrivateKey: s.cfg.PrivateKey,
		TTL:             s.cfg.TTL,
	})
	if err != nil {
		return fmt.Errorf("failed to send push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrSubscriptionExpired
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
