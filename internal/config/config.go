package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	UndoWindowSeconds      int
	LowStockThreshold      int
	SummaryCacheTTLSeconds int
	SweepIntervalSeconds   int
	SeedOperatorPIN        string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	undoWindow, err := strconv.Atoi(getEnv("UNDO_WINDOW_SECONDS", "300"))
	if err != nil || undoWindow < 1 {
		undoWindow = 300
	}
	lowStock, err := strconv.Atoi(getEnv("LOW_STOCK_THRESHOLD", "5"))
	if err != nil || lowStock < 0 {
		lowStock = 5
	}
	summaryTTL, err := strconv.Atoi(getEnv("SUMMARY_CACHE_TTL_SECONDS", "20"))
	if err != nil || summaryTTL < 1 {
		summaryTTL = 20
	}
	sweepInterval, err := strconv.Atoi(getEnv("UNDO_SWEEP_INTERVAL_SECONDS", "60"))
	if err != nil || sweepInterval < 1 {
		sweepInterval = 60
	}

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		UndoWindowSeconds:      undoWindow,
		LowStockThreshold:      lowStock,
		SummaryCacheTTLSeconds: summaryTTL,
		SweepIntervalSeconds:   sweepInterval,
		SeedOperatorPIN:        strings.TrimSpace(os.Getenv("SEED_OPERATOR_PIN")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
