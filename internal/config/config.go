package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ProfileDBPath         string
	TerminalSecret        string
	BranchID              string
	CashierID             string
	ProfileCount          int
	ScanDecayMS           int
	ScanMinLength         int
	ScanCooldownMS        int
	ScanScope             string
	ScanTargetID          string
	CatalogRefreshSeconds int
	CustomerSearchLimit   int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		ProfileDBPath:         os.Getenv("PROFILE_DB_PATH"),
		TerminalSecret:        strings.TrimSpace(os.Getenv("TERMINAL_SECRET")),
		BranchID:              getEnv("BRANCH_ID", "main"),
		CashierID:             getEnv("CASHIER_ID", "kasir-1"),
		ProfileCount:          positiveEnv("PROFILE_COUNT", 4),
		ScanDecayMS:           positiveEnv("SCAN_DECAY_MS", 150),
		ScanMinLength:         positiveEnv("SCAN_MIN_LENGTH", 6),
		ScanCooldownMS:        positiveEnv("SCAN_COOLDOWN_MS", 400),
		ScanScope:             getEnv("SCAN_SCOPE", "global"),
		ScanTargetID:          os.Getenv("SCAN_TARGET_ID"),
		CatalogRefreshSeconds: positiveEnv("CATALOG_REFRESH_SECONDS", 60),
		CustomerSearchLimit:   positiveEnv("CUSTOMER_SEARCH_LIMIT", 10),
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

func positiveEnv(key string, fallback int) int {
	parsed, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}
