package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Storage
	SQLitePath string
	DataDir    string // snapshot archive directory

	// Servers
	APIAddr     string
	MetricsAddr string

	// Optional Redis mapping cache
	RedisAddr     string
	RedisPassword string

	// Optional periodic sync (0 disables; syncs are normally triggered
	// via the API or cmd/synconce)
	SyncInterval time.Duration

	// Optional Angel One SmartAPI credentials. When all four are set,
	// the Angel adapter fetches the master contract with an
	// authenticated session.
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string

	// Optional Upstox access token. When set, the Upstox adapter uses
	// the authenticated instruments API (JSON) before the public CSVs.
	UpstoxAccessToken string

	// Optional alert channels for failed or degraded syncs.
	TelegramBotToken string
	TelegramChatID   string
	AlertWebhookURL  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		SQLitePath: getEnv("SQLITE_PATH", "data/symbols.db"),
		DataDir:    getEnv("DATA_DIR", "data/symbols"),

		APIAddr:     getEnv("API_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		SyncInterval: getDurationEnv("SYNC_INTERVAL", 0),

		AngelAPIKey:     getEnv("ANGEL_API_KEY", ""),
		AngelClientCode: getEnv("ANGEL_CLIENT_CODE", ""),
		AngelPassword:   getEnv("ANGEL_PASSWORD", ""),
		AngelTOTPSecret: getEnv("ANGEL_TOTP_SECRET", ""),

		UpstoxAccessToken: getEnv("UPSTOX_ACCESS_TOKEN", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
	}
}

// HasAngelCredentials reports whether a SmartAPI session can be generated.
func (c *Config) HasAngelCredentials() bool {
	return c.AngelAPIKey != "" && c.AngelClientCode != "" &&
		c.AngelPassword != "" && c.AngelTOTPSecret != ""
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// getDurationEnv parses either a Go duration ("30m") or a plain number of
// seconds. Invalid values fall back to the default.
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	log.Printf("[config] invalid %s value %q, using default", key, v)
	return fallback
}
