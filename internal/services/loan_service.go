package services

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/deluge-fund/backend/internal/config"
	"github.com/deluge-fund/backend/internal/models"
)

// LoanService owns share-based collective funding of peer loans and the
// application of repayments back to funders. It is the sole mutator of a
// loan's shares_remaining.
type LoanService struct {
	db        *sql.DB
	watershed *WatershedService
	cfg       *config.LedgerConfig
}

func NewLoanService(db *sql.DB, watershed *WatershedService, cfg *config.LedgerConfig) *LoanService {
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &LoanService{db: db, watershed: watershed, cfg: cfg}
}

type FundLoanResult struct {
	SharesRemaining int64  `json:"shares_remaining"`
	Status          string `json:"status"`
}

type RepaymentResult struct {
	Credits []models.FunderCredit `json:"per_funder_credits"`
	Status  string                `json:"status"`
}

// CreateLoan opens a borrowing request. The principal must be a positive
// multiple of the configured share price so it divides into whole shares.
func (s *LoanService) CreateLoan(borrowerID, principal int64) (*models.Loan, error) {
	if principal <= 0 || principal%s.cfg.SharePrice != 0 {
		return nil, ErrInvalidAmount
	}
	totalShares := principal / s.cfg.SharePrice

	loan := &models.Loan{
		BorrowerID:      borrowerID,
		Principal:       principal,
		SharePrice:      s.cfg.SharePrice,
		TotalShares:     totalShares,
		SharesRemaining: totalShares,
		Status:          models.LoanStatusOpen,
		Version:         1,
		CreatedAt:       time.Now(),
	}

	err := s.db.QueryRow(`
		INSERT INTO loans (borrower_id, principal, share_price, total_shares, shares_remaining, status, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		loan.BorrowerID, loan.Principal, loan.SharePrice, loan.TotalShares,
		loan.SharesRemaining, loan.Status, loan.Version, loan.CreatedAt).Scan(&loan.ID)
	if err != nil {
		return nil, persistenceErr("loan create", err)
	}
	return loan, nil
}

// GetLoan is a read-only lookup.
func (s *LoanService) GetLoan(loanID int64) (*models.Loan, error) {
	loan, err := s.scanLoan(s.db.QueryRow(`
		SELECT id, borrower_id, principal, share_price, total_shares, shares_remaining, status, version, created_at, funded_at, closed_at
		FROM loans
		WHERE id = $1`, loanID))
	if err == sql.ErrNoRows {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, persistenceErr("loan read", err)
	}
	return loan, nil
}

// FundLoan debits the funder for shareCount shares, records the commitment
// and decrements shares_remaining. Exactly when the last share is taken the
// loan transitions to funded and the borrower is credited the full principal,
// all in one database transaction. The loan row lock makes racing funders
// serialize, so concurrent calls can never over-fund past shares_remaining.
func (s *LoanService) FundLoan(loanID, funderID, shareCount int64) (*FundLoanResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, persistenceErr("begin", err)
	}
	defer tx.Rollback()

	loan, err := s.lockLoan(tx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusOpen {
		return nil, ErrLoanNotOpen
	}
	if shareCount <= 0 || shareCount > loan.SharesRemaining {
		return nil, ErrInvalidShareCount
	}

	loanRef := strconv.FormatInt(loanID, 10)
	if _, err := s.watershed.DebitTx(tx, funderID, shareCount*loan.SharePrice, models.RefLoanFunding, loanRef); err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO loan_shares (loan_id, funder_id, share_count, created_at)
		VALUES ($1, $2, $3, $4)`,
		loanID, funderID, shareCount, time.Now())
	if err != nil {
		return nil, persistenceErr("share insert", err)
	}

	remaining := loan.SharesRemaining - shareCount
	status := loan.Status
	if remaining == 0 {
		status = models.LoanStatusFunded
	}

	if err := s.updateLoanFunding(tx, loan, remaining, status); err != nil {
		return nil, err
	}

	if remaining == 0 {
		if _, err := s.watershed.CreditTx(tx, loan.BorrowerID, loan.Principal, models.RefLoanDisbursement, loanRef); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, persistenceErr("commit", err)
	}
	return &FundLoanResult{SharesRemaining: remaining, Status: status}, nil
}

// RecordRepayment distributes a repayment pro-rata across the loan's shares
// using the largest-remainder method, credits every funder, and appends the
// repayment row. Cumulative repayments cannot exceed the principal; reaching
// it closes the loan.
func (s *LoanService) RecordRepayment(loanID, amount int64) (*RepaymentResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, persistenceErr("begin", err)
	}
	defer tx.Rollback()

	loan, err := s.lockLoan(tx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusFunded && loan.Status != models.LoanStatusRepaying {
		return nil, ErrLoanNotFundable
	}

	var repaid int64
	if err := tx.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM repayments WHERE loan_id = $1`, loanID).Scan(&repaid); err != nil {
		return nil, persistenceErr("repayment sum", err)
	}
	if repaid+amount > loan.Principal {
		return nil, ErrInvalidAmount
	}

	shares, err := s.loadShares(tx, loanID)
	if err != nil {
		return nil, err
	}

	var repaymentID int64
	err = tx.QueryRow(`
		INSERT INTO repayments (loan_id, amount, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`, loanID, amount, time.Now()).Scan(&repaymentID)
	if err != nil {
		return nil, persistenceErr("repayment insert", err)
	}
	repaymentRef := strconv.FormatInt(repaymentID, 10)

	counts := make([]int64, len(shares))
	for i, share := range shares {
		counts[i] = share.ShareCount
	}
	portions := apportion(amount, counts, loan.TotalShares)

	credits := make([]models.FunderCredit, 0, len(shares))
	for i, share := range shares {
		if portions[i] == 0 {
			continue
		}
		if _, err := s.watershed.CreditTx(tx, share.FunderID, portions[i], models.RefRepayment, repaymentRef); err != nil {
			return nil, err
		}
		credits = append(credits, models.FunderCredit{FunderID: share.FunderID, ShareID: share.ID, Amount: portions[i]})
	}

	status := models.LoanStatusRepaying
	if repaid+amount == loan.Principal {
		status = models.LoanStatusClosed
	}
	if err := s.updateLoanStatus(tx, loan, status); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, persistenceErr("commit", err)
	}
	return &RepaymentResult{Credits: credits, Status: status}, nil
}

// apportion splits amount across shares proportionally to counts out of
// totalShares, rounding down, then hands leftover units to the entries with
// the largest fractional remainder. Ties break on the lower index (loan
// share id order), so identical inputs always produce identical outputs.
// The distributed total always equals amount exactly.
func apportion(amount int64, counts []int64, totalShares int64) []int64 {
	portions := make([]int64, len(counts))
	remainders := make([]int64, len(counts))

	var distributed int64
	for i, count := range counts {
		portions[i] = amount * count / totalShares
		remainders[i] = amount * count % totalShares
		distributed += portions[i]
	}

	leftover := amount - distributed
	if leftover == 0 || len(counts) == 0 {
		return portions
	}

	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})

	for i := int64(0); i < leftover; i++ {
		portions[order[i%int64(len(order))]]++
	}
	return portions
}

func (s *LoanService) lockLoan(tx *sql.Tx, loanID int64) (*models.Loan, error) {
	loan, err := s.scanLoan(tx.QueryRow(`
		SELECT id, borrower_id, principal, share_price, total_shares, shares_remaining, status, version, created_at, funded_at, closed_at
		FROM loans
		WHERE id = $1
		FOR UPDATE`, loanID))
	if err == sql.ErrNoRows {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, persistenceErr("loan lock", err)
	}
	return loan, nil
}

func (s *LoanService) scanLoan(row *sql.Row) (*models.Loan, error) {
	var loan models.Loan
	err := row.Scan(
		&loan.ID, &loan.BorrowerID, &loan.Principal, &loan.SharePrice,
		&loan.TotalShares, &loan.SharesRemaining, &loan.Status, &loan.Version,
		&loan.CreatedAt, &loan.FundedAt, &loan.ClosedAt)
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (s *LoanService) loadShares(tx *sql.Tx, loanID int64) ([]models.LoanShare, error) {
	rows, err := tx.Query(`
		SELECT id, loan_id, funder_id, share_count, created_at
		FROM loan_shares
		WHERE loan_id = $1
		ORDER BY id`, loanID)
	if err != nil {
		return nil, persistenceErr("shares read", err)
	}
	defer rows.Close()

	var shares []models.LoanShare
	for rows.Next() {
		var share models.LoanShare
		if err := rows.Scan(&share.ID, &share.LoanID, &share.FunderID, &share.ShareCount, &share.CreatedAt); err != nil {
			return nil, persistenceErr("shares read", err)
		}
		shares = append(shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("shares read", err)
	}
	return shares, nil
}

func (s *LoanService) updateLoanFunding(tx *sql.Tx, loan *models.Loan, remaining int64, status string) error {
	var result sql.Result
	var err error
	if status == models.LoanStatusFunded {
		result, err = tx.Exec(`
			UPDATE loans
			SET shares_remaining = $1, status = $2, funded_at = $3, version = version + 1
			WHERE id = $4 AND version = $5`,
			remaining, status, time.Now(), loan.ID, loan.Version)
	} else {
		result, err = tx.Exec(`
			UPDATE loans
			SET shares_remaining = $1, version = version + 1
			WHERE id = $2 AND version = $3`,
			remaining, loan.ID, loan.Version)
	}
	return s.checkLoanUpdate(result, err, loan.ID)
}

func (s *LoanService) updateLoanStatus(tx *sql.Tx, loan *models.Loan, status string) error {
	var result sql.Result
	var err error
	if status == models.LoanStatusClosed {
		result, err = tx.Exec(`
			UPDATE loans
			SET status = $1, closed_at = $2, version = version + 1
			WHERE id = $3 AND version = $4`,
			status, time.Now(), loan.ID, loan.Version)
	} else {
		result, err = tx.Exec(`
			UPDATE loans
			SET status = $1, version = version + 1
			WHERE id = $2 AND version = $3`,
			status, loan.ID, loan.Version)
	}
	return s.checkLoanUpdate(result, err, loan.ID)
}

func (s *LoanService) checkLoanUpdate(result sql.Result, err error, loanID int64) error {
	if err != nil {
		return persistenceErr("loan update", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistenceErr("loan update", err)
	}
	if rowsAffected == 0 {
		return persistenceErr("loan update", fmt.Errorf("optimistic lock failed for loan %d", loanID))
	}
	return nil
}
