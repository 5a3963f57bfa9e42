package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port        string
	DatabaseURL string

	AvgServiceMinutes int
	SessionTTL        time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	NotifInterval      time.Duration
	NotifBatchSize     int
	EmailProvider      string

	RateLimitPerMinute        int
	RateLimitBurst            int
	TokenRateLimitPerMinute   int
	TokenRateLimitBurst       int
	StationRateLimitPerMinute int
	StationRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),

		AvgServiceMinutes: readInt("AVG_SERVICE_MINUTES", 5),
		SessionTTL:        readDurationSeconds("SESSION_TTL_SECONDS", 43200),

		OutboxPollInterval: readDurationSeconds("OUTBOX_POLL_INTERVAL_SECONDS", 1),
		OutboxBatchSize:    readInt("OUTBOX_BATCH_SIZE", 100),
		NotifInterval:      readDurationSeconds("NOTIF_SCAN_INTERVAL_SECONDS", 5),
		NotifBatchSize:     readInt("NOTIF_BATCH_SIZE", 50),
		EmailProvider:      os.Getenv("NOTIF_EMAIL_PROVIDER"),

		RateLimitPerMinute:        readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:            readInt("RATE_LIMIT_BURST", 30),
		TokenRateLimitPerMinute:   readInt("TOKEN_RATE_LIMIT_PER_MIN", 600),
		TokenRateLimitBurst:       readInt("TOKEN_RATE_LIMIT_BURST", 120),
		StationRateLimitPerMinute: readInt("STATION_RATE_LIMIT_PER_MIN", 600),
		StationRateLimitBurst:     readInt("STATION_RATE_LIMIT_BURST", 120),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
