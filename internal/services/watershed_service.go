package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/deluge-fund/backend/internal/models"
)

// WatershedService owns per-user balance mutations and their audit trail.
// Every mutation locks the watershed row, writes an immutable transaction
// entry carrying the balance-after, and updates the balance in the same
// database transaction.
type WatershedService struct {
	db *sql.DB
}

func NewWatershedService(db *sql.DB) *WatershedService {
	return &WatershedService{db: db}
}

// Credit adds amount to the user's watershed and returns the new balance.
func (s *WatershedService) Credit(userID int64, amount int64, refType models.ReferenceType, refID string) (int64, error) {
	return s.mutate(userID, amount, refType, refID, s.CreditTx)
}

// Debit removes amount from the user's watershed and returns the new balance.
// Fails with ErrInsufficientFunds when the balance cannot cover it.
func (s *WatershedService) Debit(userID int64, amount int64, refType models.ReferenceType, refID string) (int64, error) {
	return s.mutate(userID, amount, refType, refID, s.DebitTx)
}

func (s *WatershedService) mutate(userID, amount int64, refType models.ReferenceType, refID string,
	apply func(*sql.Tx, int64, int64, models.ReferenceType, string) (int64, error)) (int64, error) {

	tx, err := s.db.Begin()
	if err != nil {
		return 0, persistenceErr("begin", err)
	}
	defer tx.Rollback()

	newBalance, err := apply(tx, userID, amount, refType, refID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, persistenceErr("commit", err)
	}
	return newBalance, nil
}

// CreditTx applies a credit inside an existing database transaction. Callers
// composing multi-owner operations (loan funding, disbursement) use this so
// both sides commit or neither does.
func (s *WatershedService) CreditTx(tx *sql.Tx, userID int64, amount int64, refType models.ReferenceType, refID string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !refType.Valid() {
		return 0, ErrInvalidReference
	}

	ws, err := s.lockWatershed(tx, userID)
	if err != nil {
		return 0, err
	}

	newBalance := ws.Balance + amount
	if err := s.appendEntry(tx, ws.ID, amount, newBalance, models.EntryTypeCredit, refType, refID); err != nil {
		return 0, err
	}
	if err := s.updateWatershed(tx, ws.ID, newBalance, ws.LifetimeIn+amount, ws.LifetimeOut, ws.Version); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// DebitTx applies a debit inside an existing database transaction. The
// balance never goes negative.
func (s *WatershedService) DebitTx(tx *sql.Tx, userID int64, amount int64, refType models.ReferenceType, refID string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !refType.Valid() {
		return 0, ErrInvalidReference
	}

	ws, err := s.lockWatershed(tx, userID)
	if err != nil {
		return 0, err
	}

	if ws.Balance < amount {
		return 0, ErrInsufficientFunds
	}

	newBalance := ws.Balance - amount
	if err := s.appendEntry(tx, ws.ID, -amount, newBalance, models.EntryTypeDebit, refType, refID); err != nil {
		return 0, err
	}
	if err := s.updateWatershed(tx, ws.ID, newBalance, ws.LifetimeIn, ws.LifetimeOut+amount, ws.Version); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// lockWatershed creates the watershed on first need, then takes a row lock so
// concurrent mutations for the same user serialize at the database.
func (s *WatershedService) lockWatershed(tx *sql.Tx, userID int64) (*models.Watershed, error) {
	_, err := tx.Exec(`
		INSERT INTO watersheds (user_id, balance, lifetime_in, lifetime_out, version, updated_at)
		VALUES ($1, 0, 0, 0, 1, NOW())
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, persistenceErr("watershed create", err)
	}

	var ws models.Watershed
	err = tx.QueryRow(`
		SELECT id, user_id, balance, lifetime_in, lifetime_out, version, updated_at
		FROM watersheds
		WHERE user_id = $1
		FOR UPDATE`, userID).Scan(
		&ws.ID, &ws.UserID, &ws.Balance, &ws.LifetimeIn, &ws.LifetimeOut, &ws.Version, &ws.UpdatedAt)
	if err != nil {
		return nil, persistenceErr("watershed lock", err)
	}
	return &ws, nil
}

func (s *WatershedService) appendEntry(tx *sql.Tx, watershedID, signedAmount, balanceAfter int64, entryType string, refType models.ReferenceType, refID string) error {
	_, err := tx.Exec(`
		INSERT INTO watershed_transactions (watershed_id, amount, balance_after, entry_type, reference_type, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		watershedID, signedAmount, balanceAfter, entryType, string(refType), refID, time.Now())
	if err != nil {
		return persistenceErr("ledger entry", err)
	}
	return nil
}

func (s *WatershedService) updateWatershed(tx *sql.Tx, watershedID, newBalance, lifetimeIn, lifetimeOut int64, version int) error {
	result, err := tx.Exec(`
		UPDATE watersheds
		SET balance = $1, lifetime_in = $2, lifetime_out = $3, version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6`,
		newBalance, lifetimeIn, lifetimeOut, time.Now(), watershedID, version)
	if err != nil {
		return persistenceErr("watershed update", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistenceErr("watershed update", err)
	}
	if rowsAffected == 0 {
		return persistenceErr("watershed update", fmt.Errorf("optimistic lock failed for watershed %d", watershedID))
	}
	return nil
}

// GetWatershed is a read-only lookup of the caller's balance record.
func (s *WatershedService) GetWatershed(userID int64) (*models.Watershed, error) {
	var ws models.Watershed
	err := s.db.QueryRow(`
		SELECT id, user_id, balance, lifetime_in, lifetime_out, version, updated_at
		FROM watersheds
		WHERE user_id = $1`, userID).Scan(
		&ws.ID, &ws.UserID, &ws.Balance, &ws.LifetimeIn, &ws.LifetimeOut, &ws.Version, &ws.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// ListTransactions returns the newest ledger entries for the caller's
// watershed, most recent first.
func (s *WatershedService) ListTransactions(userID int64, limit int) ([]models.WatershedTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT t.id, t.watershed_id, t.amount, t.balance_after, t.entry_type, t.reference_type, t.reference_id, t.created_at
		FROM watershed_transactions t
		JOIN watersheds w ON w.id = t.watershed_id
		WHERE w.user_id = $1
		ORDER BY t.id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.WatershedTransaction
	for rows.Next() {
		var e models.WatershedTransaction
		var refType string
		if err := rows.Scan(&e.ID, &e.WatershedID, &e.Amount, &e.BalanceAfter, &e.EntryType, &refType, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ReferenceType = models.ReferenceType(refType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
