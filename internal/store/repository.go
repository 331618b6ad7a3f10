/**
 * @description
 * Data access layer for the RAVITO backend. A single Repository wraps the pgx pool
 * and implements the repository interfaces declared by the app services.
 */
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProfileNotFound       = errors.New("profile not found")
	ErrSheetNotFound         = errors.New("daily sheet not found")
	ErrStockLineNotFound     = errors.New("stock line not found")
	ErrPackagingNotFound     = errors.New("packaging line not found")
	ErrExpenseNotFound       = errors.New("expense not found")
	ErrSheetNotOpen          = errors.New("daily sheet is not open")
	ErrCustomerNotFound      = errors.New("credit customer not found")
	ErrSalesRepNotFound      = errors.New("sales representative not found")
	ErrSettingsNotFound      = errors.New("commission settings not found")
	ErrPaymentNotFound       = errors.New("commission payment not found")
	ErrPaymentStatusConflict = errors.New("commission payment status changed")
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrSubscriptionNotFound  = errors.New("push subscription not found")
)

// Repository handles database operations for every module.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}
