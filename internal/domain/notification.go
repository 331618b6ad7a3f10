/**
 * @description
 * Notification and push subscription models plus the events exchanged on the bus.
 */
package domain

import "time"

// Notification is a row of the notifications table.
type Notification struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	IsRead    bool                   `json:"is_read"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Notification types emitted by the backend.
const (
	NotificationCommissionSaved     = "commission_saved"
	NotificationCommissionValidated = "commission_validated"
	NotificationCommissionPaid      = "commission_paid"
	NotificationCommissionReminder  = "commission_payment_due"
	NotificationSheetClosed         = "daily_sheet_closed"
	NotificationCreditFrozen        = "credit_customer_frozen"
	NotificationWelcome             = "welcome"
)

// NotificationListOptions controls pagination and filtering of the inbox.
type NotificationListOptions struct {
	Limit      int
	Offset     int
	UnreadOnly bool
	Type       string
}

// PushSubscription is a browser Web Push endpoint registered by a user.
type PushSubscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	UserAgent *string   `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Routing keys published on the events exchange.
const (
	EventNotificationCreated  = "notification.created"
	EventProfileRegistered    = "profile.registered"
	EventCommissionSaved      = "commission.payment.saved"
	EventCommissionValidated  = "commission.payment.validated"
	EventCommissionPaid       = "commission.payment.paid"
	EventDailySheetClosed     = "daily_sheet.closed"
	EventCreditCustomerFrozen = "credit.customer.frozen"
)

// NotificationCreatedEvent carries a freshly stored notification to the dispatcher.
type NotificationCreatedEvent struct {
	Notification Notification `json:"notification"`
	Timestamp    time.Time    `json:"timestamp"`
}

// CommissionPaymentEvent is published on every payment lifecycle transition.
type CommissionPaymentEvent struct {
	PaymentID   string        `json:"payment_id"`
	SalesRepID  string        `json:"sales_rep_id"`
	Period      Period        `json:"period"`
	Status      PaymentStatus `json:"status"`
	TotalAmount int64         `json:"total_amount"`
	Actor       string        `json:"actor,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ProfileRegisteredEvent is published when post-registration created something.
type ProfileRegisteredEvent struct {
	UserID         string    `json:"user_id"`
	Role           UserRole  `json:"role"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// DailySheetClosedEvent is published when an establishment closes its day.
type DailySheetClosedEvent struct {
	SheetID        string    `json:"sheet_id"`
	OrganizationID string    `json:"organization_id"`
	SheetDate      string    `json:"sheet_date"`
	ExpectedCash   int64     `json:"expected_cash"`
	ClosingCash    int64     `json:"closing_cash"`
	CashDifference int64     `json:"cash_difference"`
	ClosedBy       string    `json:"closed_by"`
	Timestamp      time.Time `json:"timestamp"`
}

// CreditCustomerFrozenEvent is published when a credit account is frozen.
type CreditCustomerFrozenEvent struct {
	CustomerID     string    `json:"customer_id"`
	OrganizationID string    `json:"organization_id"`
	Balance        int64     `json:"balance"`
	Reason         string    `json:"reason"`
	Actor          string    `json:"actor"`
	Timestamp      time.Time `json:"timestamp"`
}
