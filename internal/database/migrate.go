package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Migrate creates the schema if it is not there yet. Statements are
// idempotent so the server can run them on every boot.
func Migrate(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS households (
            id UUID PRIMARY KEY,
            name VARCHAR(60) NOT NULL,
            invite_code VARCHAR(8) NOT NULL UNIQUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            email VARCHAR(255) NOT NULL UNIQUE,
            password TEXT NOT NULL,
            first_name VARCHAR(100) NOT NULL,
            last_name VARCHAR(100) NOT NULL,
            household_id UUID REFERENCES households(id),
            last_login TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS recurring_bills (
            id UUID PRIMARY KEY,
            owner_id INTEGER NOT NULL REFERENCES users(id),
            title VARCHAR(100) NOT NULL,
            category VARCHAR(50) NOT NULL,
            wallet VARCHAR(50) NOT NULL DEFAULT 'default',
            amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
            frequency VARCHAR(10) NOT NULL,
            start_date TIMESTAMPTZ NOT NULL,
            next_date TIMESTAMPTZ NOT NULL,
            last_generated TIMESTAMPTZ,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            version INTEGER NOT NULL DEFAULT 1,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
            id UUID PRIMARY KEY,
            owner_id INTEGER NOT NULL REFERENCES users(id),
            amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
            category VARCHAR(50) NOT NULL,
            wallet VARCHAR(50) NOT NULL DEFAULT 'default',
            entry_type VARCHAR(10) NOT NULL CHECK (entry_type IN ('income', 'expense')),
            note VARCHAR(200) NOT NULL DEFAULT '',
            entry_date TIMESTAMPTZ NOT NULL,
            bill_id UUID REFERENCES recurring_bills(id) ON DELETE SET NULL,
            occurrence_date TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		// Idempotency anchor for the materializer: one entry per bill
		// occurrence. NULL bill_ids never collide, so manual entries
		// are unaffected.
		`CREATE UNIQUE INDEX IF NOT EXISTS ledger_entries_bill_occurrence_idx
            ON ledger_entries (bill_id, occurrence_date)`,
		`CREATE INDEX IF NOT EXISTS ledger_entries_owner_date_idx
            ON ledger_entries (owner_id, entry_date DESC)`,
		`CREATE INDEX IF NOT EXISTS recurring_bills_due_idx
            ON recurring_bills (next_date) WHERE is_active`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Println("Database schema up to date")
	return nil
}
