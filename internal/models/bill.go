package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecurringBill is a bill definition with a due-date cursor. NextDate is the
// earliest occurrence that has not been materialized into a ledger entry yet;
// it only ever moves forward. Version backs the optimistic check-and-set used
// when the materializer advances the cursor.
type RecurringBill struct {
	ID            string          `json:"id" db:"id"`
	OwnerID       string          `json:"owner_id" db:"owner_id"`
	Title         string          `json:"title" db:"title"`
	Category      string          `json:"category" db:"category"`
	Wallet        string          `json:"wallet" db:"wallet"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Frequency     string          `json:"frequency" db:"frequency"` // daily, weekly, monthly, yearly
	StartDate     time.Time       `json:"start_date" db:"start_date"`
	NextDate      time.Time       `json:"next_date" db:"next_date"`
	LastGenerated *time.Time      `json:"last_generated,omitempty" db:"last_generated"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	Version       int             `json:"version" db:"version"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}
