package main

import (
	"os"
	"strconv"
	"time"

	"github.com/robalobadob/starmatch/internal/httpserver"
)

// config is everything main reads from the environment (and .env).
type config struct {
	Port     string
	LogLevel string
	DBPath   string
	Server   httpserver.Options
}

func loadConfig() config {
	days, err := strconv.Atoi(getEnv("JWT_EXPIRES_DAYS", "14"))
	if err != nil || days <= 0 {
		days = 14
	}
	return config{
		Port:     getEnv("PORT", "5175"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DBPath:   getEnv("DB_PATH", "./data/starmatch.db"),
		Server: httpserver.Options{
			JWTSecret:    getEnv("JWT_SECRET", "dev_secret_change_me"),
			JWTExpiry:    time.Duration(days) * 24 * time.Hour,
			CookieName:   getEnv("COOKIE_NAME", "starmatch_token"),
			ClientOrigin: getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
			Secure:       os.Getenv("NODE_ENV") == "production",
			DailySalt:    getEnv("DAILY_SALT", "local_dev_salt"),
		},
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
