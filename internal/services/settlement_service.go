package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/deluge-fund/backend/internal/audit"
	"github.com/deluge-fund/backend/internal/metrics"
	"github.com/deluge-fund/backend/internal/models"
	"github.com/google/uuid"
)

// SettlementService reconciles pending external-payment settlements against
// the reserve. Clearing is idempotent at the API boundary: the state machine
// is pending -> cleared | failed with no way out of a terminal state, and a
// repeat clear reports not-found/already-cleared instead of double-applying.
type SettlementService struct {
	db      *sql.DB
	reserve *ReserveService
	audit   *audit.Logger
}

func NewSettlementService(db *sql.DB, reserve *ReserveService, auditLogger *audit.Logger) *SettlementService {
	return &SettlementService{db: db, reserve: reserve, audit: auditLogger}
}

// CreateSettlement records a pending reconciliation for a signed amount
// (positive inflow, negative payout).
func (s *SettlementService) CreateSettlement(amount int64, description string) (*models.Settlement, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	settlement := &models.Settlement{
		ID:          uuid.New().String(),
		Amount:      amount,
		Status:      models.SettlementPending,
		Description: description,
		CreatedAt:   time.Now(),
	}

	_, err := s.db.Exec(`
		INSERT INTO settlements (id, amount, status, description, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		settlement.ID, settlement.Amount, settlement.Status, settlement.Description, settlement.CreatedAt)
	if err != nil {
		return nil, persistenceErr("settlement create", err)
	}
	return settlement, nil
}

// ClearSettlement transitions a pending settlement to cleared and applies its
// amount to the reserve, atomically. The conditional UPDATE on status makes a
// concurrent or repeated clear lose cleanly: zero rows affected means the
// settlement is unknown or already terminal, and the reserve is untouched.
func (s *SettlementService) ClearSettlement(settlementID, providerRef string) (*models.Settlement, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, persistenceErr("begin", err)
	}
	defer tx.Rollback()

	now := time.Now()
	var settlement models.Settlement
	err = tx.QueryRow(`
		UPDATE settlements
		SET status = $1, provider_ref = $2, cleared_at = $3
		WHERE id = $4 AND status = $5
		RETURNING id, amount, status, provider_ref, description, created_at, cleared_at`,
		models.SettlementCleared, providerRef, now, settlementID, models.SettlementPending).Scan(
		&settlement.ID, &settlement.Amount, &settlement.Status,
		&settlement.ProviderRef, &settlement.Description, &settlement.CreatedAt, &settlement.ClearedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSettlementNotPending
	}
	if err != nil {
		return nil, persistenceErr("settlement clear", err)
	}

	description := fmt.Sprintf("settlement %s cleared", settlementID)
	reserveBalance, err := s.reserve.AdjustTx(tx, settlement.Amount, models.RefSettlement, settlementID, description)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, persistenceErr("commit", err)
	}
	metrics.ReserveBalance.Set(float64(reserveBalance))

	if s.audit != nil {
		s.audit.LogSettlement(settlementID, providerRef, settlement.Amount, "CLEARED")
	}
	return &settlement, nil
}

// MarkFailed transitions a pending settlement to failed. Set by the payment
// provider callback; terminal, with no reserve effect.
func (s *SettlementService) MarkFailed(settlementID string) error {
	result, err := s.db.Exec(`
		UPDATE settlements
		SET status = $1
		WHERE id = $2 AND status = $3`,
		models.SettlementFailed, settlementID, models.SettlementPending)
	if err != nil {
		return persistenceErr("settlement fail", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistenceErr("settlement fail", err)
	}
	if rowsAffected == 0 {
		return ErrSettlementNotPending
	}

	if s.audit != nil {
		s.audit.LogSettlement(settlementID, "", 0, "FAILED")
	}
	return nil
}

// GetSettlement is a read-only lookup.
func (s *SettlementService) GetSettlement(settlementID string) (*models.Settlement, error) {
	var settlement models.Settlement
	var providerRef sql.NullString
	err := s.db.QueryRow(`
		SELECT id, amount, status, provider_ref, description, created_at, cleared_at
		FROM settlements
		WHERE id = $1`, settlementID).Scan(
		&settlement.ID, &settlement.Amount, &settlement.Status,
		&providerRef, &settlement.Description, &settlement.CreatedAt, &settlement.ClearedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSettlementNotPending
	}
	if err != nil {
		return nil, persistenceErr("settlement read", err)
	}
	settlement.ProviderRef = providerRef.String
	return &settlement, nil
}
