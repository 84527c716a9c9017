package models

import (
	"time"
)

// Loan lifecycle: open -> funded -> repaying -> closed.
const (
	LoanStatusOpen     = "open"
	LoanStatusFunded   = "funded"
	LoanStatusRepaying = "repaying"
	LoanStatusClosed   = "closed"
)

// Loan is a peer borrowing request funded collectively in fixed-price shares.
// SharesRemaining is monotonically non-increasing until zero; shares funded
// never exceed TotalShares.
type Loan struct {
	ID              int64      `json:"id" db:"id"`
	BorrowerID      int64      `json:"borrower_id" db:"borrower_id"`
	Principal       int64      `json:"principal" db:"principal"` // minor units
	SharePrice      int64      `json:"share_price" db:"share_price"`
	TotalShares     int64      `json:"total_shares" db:"total_shares"`
	SharesRemaining int64      `json:"shares_remaining" db:"shares_remaining"`
	Status          string     `json:"status" db:"status"`
	Version         int        `json:"version" db:"version"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	FundedAt        *time.Time `json:"funded_at,omitempty" db:"funded_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty" db:"closed_at"`
}

// LoanShare records one funder's commitment to a loan.
type LoanShare struct {
	ID         int64     `json:"id" db:"id"`
	LoanID     int64     `json:"loan_id" db:"loan_id"`
	FunderID   int64     `json:"funder_id" db:"funder_id"`
	ShareCount int64     `json:"share_count" db:"share_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Repayment is one repayment event against a loan. The pro-rata distribution
// back to funders is recorded as watershed transactions referencing it.
type Repayment struct {
	ID        int64     `json:"id" db:"id"`
	LoanID    int64     `json:"loan_id" db:"loan_id"`
	Amount    int64     `json:"amount" db:"amount"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FunderCredit is one funder's slice of a repayment distribution.
type FunderCredit struct {
	FunderID int64 `json:"funder_id"`
	ShareID  int64 `json:"share_id"`
	Amount   int64 `json:"amount"`
}
