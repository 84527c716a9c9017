package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/deluge-fund/backend/internal/config"
	"github.com/deluge-fund/backend/internal/metrics"
	"github.com/deluge-fund/backend/internal/models"
)

const reserveRowID = 1

// ReserveService owns the singleton platform reserve. The reserve row is a
// global hot resource serialized through database row locking so the service
// stays correct when horizontally scaled.
type ReserveService struct {
	db  *sql.DB
	cfg *config.LedgerConfig
}

func NewReserveService(db *sql.DB, cfg *config.LedgerConfig) *ReserveService {
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &ReserveService{db: db, cfg: cfg}
}

// Adjust moves the reserve by a signed amount. Negative adjustments fail with
// ErrInsufficientReserve rather than driving the balance below zero.
func (s *ReserveService) Adjust(amount int64, description string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, persistenceErr("begin", err)
	}
	defer tx.Rollback()

	newBalance, err := s.AdjustTx(tx, amount, models.RefReserveAdjust, "", description)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, persistenceErr("commit", err)
	}

	// Gauge reflects committed state only; AdjustTx may still be rolled back.
	metrics.ReserveBalance.Set(float64(newBalance))
	return newBalance, nil
}

// AdjustTx applies a reserve adjustment inside an existing database
// transaction. The settlement clearer composes this with its own status
// update so both apply or neither does.
func (s *ReserveService) AdjustTx(tx *sql.Tx, amount int64, refType models.ReferenceType, refID, description string) (int64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	if !refType.Valid() {
		return 0, ErrInvalidReference
	}

	reserve, err := s.lockReserve(tx)
	if err != nil {
		return 0, err
	}

	newBalance := reserve.Balance + amount
	if newBalance < 0 {
		return 0, ErrInsufficientReserve
	}

	entryType := models.EntryTypeCredit
	lifetimeIn, lifetimeOut := reserve.LifetimeIn, reserve.LifetimeOut
	if amount > 0 {
		lifetimeIn += amount
	} else {
		entryType = models.EntryTypeDebit
		lifetimeOut += -amount
	}

	_, err = tx.Exec(`
		INSERT INTO reserve_transactions (reserve_id, entry_type, amount, balance_after, reference_type, reference_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		reserve.ID, entryType, amount, newBalance, string(refType), refID, description, time.Now())
	if err != nil {
		return 0, persistenceErr("reserve entry", err)
	}

	result, err := tx.Exec(`
		UPDATE reserve
		SET balance = $1, lifetime_in = $2, lifetime_out = $3, version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6`,
		newBalance, lifetimeIn, lifetimeOut, time.Now(), reserve.ID, reserve.Version)
	if err != nil {
		return 0, persistenceErr("reserve update", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, persistenceErr("reserve update", err)
	}
	if rowsAffected == 0 {
		return 0, persistenceErr("reserve update", fmt.Errorf("optimistic lock failed for reserve"))
	}

	return newBalance, nil
}

func (s *ReserveService) lockReserve(tx *sql.Tx) (*models.Reserve, error) {
	var reserve models.Reserve
	err := tx.QueryRow(`
		SELECT id, balance, lifetime_in, lifetime_out, version, updated_at
		FROM reserve
		WHERE id = $1
		FOR UPDATE`, reserveRowID).Scan(
		&reserve.ID, &reserve.Balance, &reserve.LifetimeIn, &reserve.LifetimeOut, &reserve.Version, &reserve.UpdatedAt)
	if err != nil {
		return nil, persistenceErr("reserve lock", err)
	}
	return &reserve, nil
}

// GetHealth is a pure read: current balance classified against the configured
// watermarks plus the signed flow over the trailing trend window. Safe under
// arbitrary concurrency.
func (s *ReserveService) GetHealth() (*models.ReserveHealth, error) {
	var balance int64
	err := s.db.QueryRow(`SELECT balance FROM reserve WHERE id = $1`, reserveRowID).Scan(&balance)
	if err != nil {
		return nil, persistenceErr("reserve read", err)
	}

	var flow int64
	err = s.db.QueryRow(`
		SELECT COALESCE(SUM(amount), 0)
		FROM reserve_transactions
		WHERE reserve_id = $1 AND created_at > $2`,
		reserveRowID, time.Now().Add(-s.cfg.TrendWindow)).Scan(&flow)
	if err != nil {
		return nil, persistenceErr("reserve trend", err)
	}

	health := &models.ReserveHealth{Balance: balance}

	switch {
	case balance <= s.cfg.ReserveCriticalMark:
		health.Status = models.ReserveCritical
	case balance <= s.cfg.ReserveLowWatermark:
		health.Status = models.ReserveLow
	default:
		health.Status = models.ReserveHealthy
	}

	switch {
	case flow > 0:
		health.Trend = models.TrendRising
	case flow < 0:
		health.Trend = models.TrendFalling
	default:
		health.Trend = models.TrendFlat
	}

	return health, nil
}
