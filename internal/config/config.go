package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	Environment           string
	DatabaseURL           string
	AutoMigrate           bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	LogFile               string
	LogLevel              string
	ShopName              string
	ReceiptSpoolDir       string
	ExpirySweepSpec       string
	SyncWorkers           int
	NodeID                int64
}

// Load reads the process environment, after merging a .env file from the
// working directory when one exists. Variables already set win over .env.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	workers, err := strconv.Atoi(getEnv("SYNC_WORKERS", "8"))
	if err != nil || workers < 1 {
		workers = 8
	}
	nodeID, err := strconv.ParseInt(getEnv("NODE_ID", "1"), 10, 64)
	if err != nil || nodeID < 0 || nodeID > 1023 {
		nodeID = 1
	}
	autoMigrate, _ := strconv.ParseBool(getEnv("AUTO_MIGRATE", "false"))

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:5173"),
		Environment:           getEnv("APP_ENV", "development"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		AutoMigrate:           autoMigrate,
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		LogFile:               os.Getenv("LOG_FILE"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		ShopName:              getEnv("SHOP_NAME", "One Desktop Solution"),
		ReceiptSpoolDir:       os.Getenv("RECEIPT_SPOOL_DIR"),
		ExpirySweepSpec:       getEnv("EXPIRY_SWEEP_SPEC", "@every 1h"),
		SyncWorkers:           workers,
		NodeID:                nodeID,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
