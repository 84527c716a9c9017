package models

import (
	"time"
)

// Entry types for ledger transaction rows.
const (
	EntryTypeCredit = "CREDIT"
	EntryTypeDebit  = "DEBIT"
)

// ReferenceType is the closed set of causes a ledger entry may point at.
type ReferenceType string

const (
	RefContribution     ReferenceType = "contribution"
	RefWithdrawal       ReferenceType = "withdrawal"
	RefLoanFunding      ReferenceType = "loan_funding"
	RefLoanDisbursement ReferenceType = "loan_disbursement"
	RefRepayment        ReferenceType = "repayment"
	RefAdReward         ReferenceType = "ad_reward"
	RefSettlement       ReferenceType = "settlement"
	RefReserveAdjust    ReferenceType = "reserve_adjustment"
)

// Valid reports whether rt is one of the known reference kinds.
func (rt ReferenceType) Valid() bool {
	switch rt {
	case RefContribution, RefWithdrawal, RefLoanFunding, RefLoanDisbursement,
		RefRepayment, RefAdReward, RefSettlement, RefReserveAdjust:
		return true
	}
	return false
}

// Watershed is a user's internal balance. Mutated only through signed
// transaction entries, never written directly.
type Watershed struct {
	ID          int64     `json:"id" db:"id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	Balance     int64     `json:"balance" db:"balance"` // minor currency units
	LifetimeIn  int64     `json:"lifetime_in" db:"lifetime_in"`
	LifetimeOut int64     `json:"lifetime_out" db:"lifetime_out"`
	Version     int       `json:"version" db:"version"` // for optimistic locking
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// WatershedTransaction is an immutable ledger row. Replaying the signed
// amounts for a watershed in creation order reconstructs its balance.
type WatershedTransaction struct {
	ID            int64         `json:"id" db:"id"`
	WatershedID   int64         `json:"watershed_id" db:"watershed_id"`
	Amount        int64         `json:"amount" db:"amount"` // signed, minor units
	BalanceAfter  int64         `json:"balance_after" db:"balance_after"`
	EntryType     string        `json:"entry_type" db:"entry_type"`
	ReferenceType ReferenceType `json:"reference_type" db:"reference_type"`
	ReferenceID   string        `json:"reference_id" db:"reference_id"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}
