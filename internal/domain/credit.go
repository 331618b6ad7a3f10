package domain

import "time"

// CreditStatus is the state of a credit customer account.
type CreditStatus string

const (
	CreditActive CreditStatus = "active"
	CreditFrozen CreditStatus = "frozen"
)

// CreditTransactionType distinguishes consumptions from payments.
type CreditTransactionType string

const (
	CreditConsumption CreditTransactionType = "consumption"
	CreditPayment     CreditTransactionType = "payment"
)

// CreditCustomer is a customer allowed to consume on credit at an establishment.
// A CreditLimit of zero means no limit.
type CreditCustomer struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organization_id"`
	Name           string       `json:"name"`
	Phone          *string      `json:"phone,omitempty"`
	CreditLimit    int64        `json:"credit_limit"`
	CurrentBalance int64        `json:"current_balance"`
	Status         CreditStatus `json:"status"`
	FrozenReason   *string      `json:"frozen_reason,omitempty"`
	FrozenAt       *time.Time   `json:"frozen_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// CreditTransaction is one ledger movement. BalanceAfter is the customer's balance
// once the movement is applied.
type CreditTransaction struct {
	ID             string                `json:"id"`
	CustomerID     string                `json:"customer_id"`
	OrganizationID string                `json:"organization_id"`
	Type           CreditTransactionType `json:"type"`
	Amount         int64                 `json:"amount"`
	BalanceAfter   int64                 `json:"balance_after"`
	Notes          *string               `json:"notes,omitempty"`
	CreatedBy      string                `json:"created_by"`
	CreatedAt      time.Time             `json:"created_at"`
}

// CreditCustomerFilter narrows customer listings.
type CreditCustomerFilter struct {
	Status      CreditStatus
	Search      string
	WithBalance bool
}

// DailyCreditTotals aggregates a day's ledger movements for an organization.
type DailyCreditTotals struct {
	Sales    int64 `json:"credit_sales"`
	Payments int64 `json:"credit_payments"`
}

// CreditCustomerInput is the payload used to open a credit account.
type CreditCustomerInput struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Phone       *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	CreditLimit int64   `json:"credit_limit" validate:"min=0"`
}
