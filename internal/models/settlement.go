package models

import (
	"time"
)

// Settlement lifecycle: pending -> cleared | failed. Both end states are
// terminal.
const (
	SettlementPending = "pending"
	SettlementCleared = "cleared"
	SettlementFailed  = "failed"
)

// Settlement is a pending external-payment reconciliation. Clearing one
// produces exactly one reserve transaction.
type Settlement struct {
	ID          string     `json:"id" db:"id"`
	Amount      int64      `json:"amount" db:"amount"` // signed, minor units
	Status      string     `json:"status" db:"status"`
	ProviderRef string     `json:"provider_ref,omitempty" db:"provider_ref"`
	Description string     `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ClearedAt   *time.Time `json:"cleared_at,omitempty" db:"cleared_at"`
}
