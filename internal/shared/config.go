package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	GatewayBase   string
	GatewayKeyID  string
	GatewaySecret string
	GatewayRPS    int
	Currency      string

	TaxRateBps    int
	HoldTTL       time.Duration
	CancelCutoff  time.Duration
	SweepInterval time.Duration
	AvailCacheTTL time.Duration

	SeedFile    string
	SeedWorkers int
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/hotelbook?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),

		GatewayBase:   env("GATEWAY_BASE_URL", "https://api.razorpay.com"),
		GatewayKeyID:  env("GATEWAY_KEY_ID", ""),
		GatewaySecret: env("GATEWAY_KEY_SECRET", ""),
		GatewayRPS:    atoi("GATEWAY_RPS", 5),
		Currency:      env("CURRENCY", "INR"),

		// The storefront shows these as fixed constants; server side they
		// are configuration because no authoritative source exists.
		TaxRateBps:    atoi("TAX_RATE_BPS", 1800),
		HoldTTL:       time.Duration(atoi("HOLD_TTL_SECONDS", 900)) * time.Second,
		CancelCutoff:  time.Duration(atoi("CANCEL_CUTOFF_HOURS", 24)) * time.Hour,
		SweepInterval: time.Duration(atoi("SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		AvailCacheTTL: time.Duration(atoi("AVAIL_CACHE_TTL_SECONDS", 5)) * time.Second,

		SeedFile:    env("SEED_FILE", "catalog.json"),
		SeedWorkers: atoi("SEED_WORKERS", 8),
	}
	if c.GatewayKeyID == "" || c.GatewaySecret == "" {
		log.Warn().Msg("GATEWAY_KEY_ID / GATEWAY_KEY_SECRET are empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
