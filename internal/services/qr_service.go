package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/deluge-fund/backend/internal/config"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// Funding intent kinds carried in a QR payload.
const (
	QRKindLoanFunding = "loan_funding"
	QRKindTopUp       = "top_up"
)

// QRService issues short-lived, single-use QR codes encoding a funding
// intent: either taking shares in a loan or topping up a watershed.
type QRService struct {
	db    *sql.DB
	redis *redis.Client
	cfg   *config.LedgerConfig
}

func NewQRService(db *sql.DB, redisClient *redis.Client, cfg *config.LedgerConfig) *QRService {
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &QRService{db: db, redis: redisClient, cfg: cfg}
}

func (s *QRService) GenerateFundingCode(ctx context.Context, userID int64, kind string, loanID, shareCount, amount int64) (string, string, error) {
	if s.redis == nil {
		return "", "", ErrFundingCodesOffline
	}
	if kind != QRKindLoanFunding && kind != QRKindTopUp {
		return "", "", fmt.Errorf("unknown funding kind %q", kind)
	}

	qrData := map[string]any{
		"kind":      kind,
		"userId":    userID,
		"loanId":    loanID,
		"shares":    shareCount,
		"amount":    amount,
		"timestamp": time.Now().Unix(),
		"nonce":     s.generateNonce(),
	}

	jsonData, err := json.Marshal(qrData)
	if err != nil {
		return "", "", err
	}

	code := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("funding_qr:%s", code)
	if err := s.redis.Set(ctx, key, jsonData, s.cfg.FundingCodeTimeout).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	return code, qrImage, nil
}

// ResolveFundingCode consumes a code, returning its intent payload. Codes are
// single use: the backing key is deleted on first resolve.
func (s *QRService) ResolveFundingCode(ctx context.Context, code string) (map[string]any, error) {
	if s.redis == nil {
		return nil, ErrFundingCodesOffline
	}
	key := fmt.Sprintf("funding_qr:%s", code)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired funding code")
	}
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return result, nil
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
