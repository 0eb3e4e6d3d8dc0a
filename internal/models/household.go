package models

import "time"

// Household groups users sharing budgets. Members join with the invite code.
type Household struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	InviteCode string    `json:"invite_code" db:"invite_code"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
