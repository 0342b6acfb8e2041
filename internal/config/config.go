package config

import (
	"log/slog"
	"os"
	"time"
)

type Config struct {
	Port         string
	Env          string
	DatabaseDSN  string
	JWTSecret    string
	JWTExpiry    time.Duration
	GeminiAPIKey string
	AgentModel   string
	AgentTimeout time.Duration
	UploadDir    string
}

func Load() Config {
	cfg := Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("ENV", "development"),
		DatabaseDSN:  getEnv("DATABASE_DSN", "root:password@tcp(127.0.0.1:3306)/dataground?parseTime=true"),
		JWTSecret:    getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		JWTExpiry:    getDuration("JWT_EXPIRY", 24*time.Hour),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		AgentModel:   getEnv("AGENT_MODEL", "gemini-1.5-flash-latest"),
		AgentTimeout: getDuration("AGENT_TIMEOUT", 60*time.Second),
		UploadDir:    getEnv("UPLOAD_DIR", "uploaded_files"),
	}

	if cfg.Env == "production" && cfg.JWTSecret == "dev-secret-change-in-production" {
		slog.Error("JWT_SECRET must be set in production environment")
		os.Exit(1)
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using fallback", "key", key, "value", v)
		return fallback
	}
	return d
}
