package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/deluge-fund/backend/internal/models"
)

func newSettlementService(t *testing.T) (*SettlementService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	service := NewSettlementService(db, NewReserveService(db, nil), nil)
	return service, mock, func() { db.Close() }
}

func TestSettlementService_CreateSettlement(t *testing.T) {
	service, mock, closeDB := newSettlementService(t)
	defer closeDB()

	t.Run("records pending settlement", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO settlements").
			WithArgs(sqlmock.AnyArg(), int64(5000), models.SettlementPending, "card acquirer batch 12", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		settlement, err := service.CreateSettlement(5000, "card acquirer batch 12")
		assert.NoError(t, err)
		assert.NotEmpty(t, settlement.ID)
		assert.Equal(t, models.SettlementPending, settlement.Status)
		assert.Equal(t, int64(5000), settlement.Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		_, err := service.CreateSettlement(0, "empty")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestSettlementService_ClearSettlement(t *testing.T) {
	settlementID := "a9f0e2d4-1c3b-4f5a-8e7d-6b5c4a3f2e1d"
	clearColumns := []string{"id", "amount", "status", "provider_ref", "description", "created_at", "cleared_at"}

	t.Run("clears and applies amount to reserve", func(t *testing.T) {
		service, mock, closeDB := newSettlementService(t)
		defer closeDB()

		mock.ExpectBegin()

		mock.ExpectQuery("(?s)UPDATE settlements.*SET status = \\$1, provider_ref = \\$2, cleared_at = \\$3.*WHERE id = \\$4 AND status = \\$5.*RETURNING").
			WithArgs(models.SettlementCleared, "prov-88", sqlmock.AnyArg(), settlementID, models.SettlementPending).
			WillReturnRows(sqlmock.NewRows(clearColumns).
				AddRow(settlementID, 5000, models.SettlementCleared, "prov-88", "card acquirer batch 12", time.Now(), time.Now()))

		expectReserveLock(mock, 20_000, 1)
		mock.ExpectExec("INSERT INTO reserve_transactions").
			WithArgs(int64(1), models.EntryTypeCredit, int64(5000), int64(25_000), string(models.RefSettlement), settlementID, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE reserve").
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		settlement, err := service.ClearSettlement(settlementID, "prov-88")
		assert.NoError(t, err)
		assert.Equal(t, models.SettlementCleared, settlement.Status)
		assert.Equal(t, "prov-88", settlement.ProviderRef)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("repeat clear reports not pending and leaves reserve alone", func(t *testing.T) {
		service, mock, closeDB := newSettlementService(t)
		defer closeDB()

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE settlements").
			WithArgs(models.SettlementCleared, "", sqlmock.AnyArg(), settlementID, models.SettlementPending).
			WillReturnRows(sqlmock.NewRows(clearColumns))
		mock.ExpectRollback()

		_, err := service.ClearSettlement(settlementID, "")
		assert.ErrorIs(t, err, ErrSettlementNotPending)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative settlement cannot drain the reserve below zero", func(t *testing.T) {
		service, mock, closeDB := newSettlementService(t)
		defer closeDB()

		mock.ExpectBegin()

		mock.ExpectQuery("UPDATE settlements").
			WithArgs(models.SettlementCleared, "prov-89", sqlmock.AnyArg(), settlementID, models.SettlementPending).
			WillReturnRows(sqlmock.NewRows(clearColumns).
				AddRow(settlementID, -30_000, models.SettlementCleared, "prov-89", "payout batch", time.Now(), time.Now()))

		expectReserveLock(mock, 20_000, 1)
		mock.ExpectRollback()

		_, err := service.ClearSettlement(settlementID, "prov-89")
		assert.ErrorIs(t, err, ErrInsufficientReserve)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSettlementService_MarkFailed(t *testing.T) {
	settlementID := "a9f0e2d4-1c3b-4f5a-8e7d-6b5c4a3f2e1d"

	t.Run("fails a pending settlement", func(t *testing.T) {
		service, mock, closeDB := newSettlementService(t)
		defer closeDB()

		mock.ExpectExec("(?s)UPDATE settlements.*SET status = \\$1.*WHERE id = \\$2 AND status = \\$3").
			WithArgs(models.SettlementFailed, settlementID, models.SettlementPending).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.MarkFailed(settlementID)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("terminal settlement stays terminal", func(t *testing.T) {
		service, mock, closeDB := newSettlementService(t)
		defer closeDB()

		mock.ExpectExec("UPDATE settlements").
			WithArgs(models.SettlementFailed, settlementID, models.SettlementPending).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.MarkFailed(settlementID)
		assert.ErrorIs(t, err, ErrSettlementNotPending)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
