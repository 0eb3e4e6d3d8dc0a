package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry types for ledger entries
const (
	EntryTypeIncome  = "income"
	EntryTypeExpense = "expense"
)

// LedgerEntry represents a single dated financial record belonging to a user.
// Entries generated from a recurring bill carry the source bill's ID together
// with the occurrence date; the pair is unique at the store level.
type LedgerEntry struct {
	ID             string          `json:"id" db:"id"`
	OwnerID        string          `json:"owner_id" db:"owner_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Category       string          `json:"category" db:"category"`
	Wallet         string          `json:"wallet" db:"wallet"`
	EntryType      string          `json:"entry_type" db:"entry_type"` // income or expense
	Note           string          `json:"note" db:"note"`
	EntryDate      time.Time       `json:"entry_date" db:"entry_date"`
	BillID         *string         `json:"bill_id,omitempty" db:"bill_id"`
	OccurrenceDate *time.Time      `json:"occurrence_date,omitempty" db:"occurrence_date"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// CategoryTotal is one row of the dashboard category breakdown.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// DashboardSummary aggregates a user's ledger over a period.
type DashboardSummary struct {
	Period       string          `json:"period"`
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	Net          decimal.Decimal `json:"net"`
	EntryCount   int             `json:"entry_count"`
	ByCategory   []CategoryTotal `json:"by_category"`
}
