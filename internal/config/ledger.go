package config

import (
	"os"
	"strconv"
	"time"
)

type LedgerConfig struct {
	SharePrice          int64
	Currency            string
	ReserveLowWatermark int64
	ReserveCriticalMark int64
	TrendWindow         time.Duration
	FundingCodeTimeout  time.Duration
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		SharePrice:          getEnvAsInt64("LEDGER_SHARE_PRICE", 100),
		Currency:            getEnv("LEDGER_CURRENCY", "USD"),
		ReserveLowWatermark: getEnvAsInt64("RESERVE_LOW_WATERMARK", 100_000),
		ReserveCriticalMark: getEnvAsInt64("RESERVE_CRITICAL_WATERMARK", 25_000),
		TrendWindow:         getEnvAsDuration("RESERVE_TREND_WINDOW", 24*time.Hour),
		FundingCodeTimeout:  getEnvAsDuration("FUNDING_CODE_TIMEOUT", 5*time.Minute),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
