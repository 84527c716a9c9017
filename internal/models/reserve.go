package models

import (
	"time"
)

// Reserve health classifications.
const (
	ReserveHealthy  = "healthy"
	ReserveLow      = "low"
	ReserveCritical = "critical"
)

// Reserve trend classifications over the trailing window.
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendFlat    = "flat"
)

// Reserve is the singleton platform cash buffer. Same mutation discipline as
// Watershed: every change goes through a ReserveTransaction.
type Reserve struct {
	ID          int64     `json:"id" db:"id"`
	Balance     int64     `json:"balance" db:"balance"`
	LifetimeIn  int64     `json:"lifetime_in" db:"lifetime_in"`
	LifetimeOut int64     `json:"lifetime_out" db:"lifetime_out"`
	Version     int       `json:"version" db:"version"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type ReserveTransaction struct {
	ID            int64         `json:"id" db:"id"`
	ReserveID     int64         `json:"reserve_id" db:"reserve_id"`
	EntryType     string        `json:"entry_type" db:"entry_type"`
	Amount        int64         `json:"amount" db:"amount"` // signed, minor units
	BalanceAfter  int64         `json:"balance_after" db:"balance_after"`
	ReferenceType ReferenceType `json:"reference_type" db:"reference_type"`
	ReferenceID   string        `json:"reference_id" db:"reference_id"`
	Description   string        `json:"description" db:"description"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// ReserveHealth is the read-only summary returned by the health endpoint.
type ReserveHealth struct {
	Balance int64  `json:"balance"`
	Status  string `json:"status"`
	Trend   string `json:"trend"`
}
