/**
 * @description
 * Application services of the RAVITO backend. Each service owns the business rules of
 * one module and talks to storage, cache and the event bus through small interfaces
 * implemented by the store, cache and rabbitmq packages.
 */
package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ravito/ravito-backend/internal/domain"
)

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNoOrganization      = errors.New("user has no organization")
	ErrProfileUnavailable  = errors.New("profile unavailable")
	ErrSheetClosed         = errors.New("daily sheet is closed")
	ErrSheetNotClosed      = errors.New("daily sheet is not closed")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrCustomerFrozen      = errors.New("credit customer is frozen")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrOverpayment         = errors.New("payment exceeds outstanding balance")
	ErrPaymentLocked       = errors.New("commission payment is locked")
	ErrInvalidTransition   = errors.New("invalid commission payment transition")
	ErrNothingToValidate   = errors.New("no pending commission payments for period")
)

// SystemActor is the actor of scheduled operations triggered through internal routes.
// It has no user id, so the rows it writes carry no author.
var SystemActor = domain.Actor{Role: domain.RoleAdmin}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Notifier stores an in-app notification and hands it to delivery.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) (*domain.Notification, error)
}

// events publishes domain events on one exchange. Publishing is best effort: a failed
// publish is logged and never fails the operation that triggered it.
type events struct {
	publisher EventPublisher
	exchange  string
}

func (e events) publish(ctx context.Context, routingKey string, body interface{}) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, e.exchange, routingKey, body); err != nil {
		log.Printf("level=warn component=events msg=\"publish failed\" exchange=%s routing_key=%s err=%v", e.exchange, routingKey, err)
	}
}

// notify sends a notification when a notifier is configured, logging failures.
func notify(ctx context.Context, notifier Notifier, n domain.Notification) {
	if notifier == nil || n.UserID == "" {
		return
	}
	if _, err := notifier.Notify(ctx, n); err != nil {
		log.Printf("level=warn component=notifications msg=\"notify failed\" user_id=%s type=%s err=%v", n.UserID, n.Type, err)
	}
}

func loadLocation(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Printf("WARN: invalid timezone %q, defaulting to UTC", timezone)
		return time.UTC
	}
	return loc
}

// startOfDay truncates t to midnight in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
