package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
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
	LogLevel               string
	TrialDays              int
	SuggestionLimit        int
	CatalogCacheTTLSeconds int
	CommitLockTTLSeconds   int
	SessionIdleMinutes     int
	DefaultCustomerID      int64
	DefaultUserID          int64
	DefaultDocumentTypeID  int64
}

// Load reads the environment, plus a .env file in the working directory when present.
func Load() Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TRIAL_DAYS", 15)
	v.SetDefault("SUGGESTION_LIMIT", 8)
	v.SetDefault("CATALOG_CACHE_TTL_SECONDS", 30)
	v.SetDefault("COMMIT_LOCK_TTL_SECONDS", 30)
	v.SetDefault("SESSION_IDLE_MINUTES", 60)

	return Config{
		Port:                   v.GetString("PORT"),
		AllowedOrigin:          v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		RedisAddr:              v.GetString("REDIS_ADDR"),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                v.GetInt("REDIS_DB"),
		AuthSecret:             strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:  atLeast(v.GetInt("ACCESS_TOKEN_TTL_MINUTES"), 1, 480),
		LogLevel:               v.GetString("LOG_LEVEL"),
		TrialDays:              atLeast(v.GetInt("TRIAL_DAYS"), 1, 15),
		SuggestionLimit:        atLeast(v.GetInt("SUGGESTION_LIMIT"), 1, 8),
		CatalogCacheTTLSeconds: atLeast(v.GetInt("CATALOG_CACHE_TTL_SECONDS"), 1, 30),
		CommitLockTTLSeconds:   atLeast(v.GetInt("COMMIT_LOCK_TTL_SECONDS"), 1, 30),
		SessionIdleMinutes:     atLeast(v.GetInt("SESSION_IDLE_MINUTES"), 1, 60),
		DefaultCustomerID:      v.GetInt64("DEFAULT_CUSTOMER_ID"),
		DefaultUserID:          v.GetInt64("DEFAULT_USER_ID"),
		DefaultDocumentTypeID:  v.GetInt64("DEFAULT_DOCUMENT_TYPE_ID"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func atLeast(value int, min int, fallback int) int {
	if value < min {
		return fallback
	}
	return value
}
