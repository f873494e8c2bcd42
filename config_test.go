package main

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "LOG_LEVEL", "DB_PATH", "JWT_SECRET", "JWT_EXPIRES_DAYS", "COOKIE_NAME", "CLIENT_ORIGIN", "DAILY_SALT", "NODE_ENV"} {
		t.Setenv(k, "")
	}
	cfg := loadConfig()
	if cfg.Port != "5175" || cfg.DBPath != "./data/starmatch.db" || cfg.LogLevel != "info" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Server.JWTExpiry != 14*24*time.Hour || cfg.Server.Secure {
		t.Fatalf("server opts = %+v", cfg.Server)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("JWT_EXPIRES_DAYS", "2")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("DAILY_SALT", "pepper")
	cfg := loadConfig()
	if cfg.Port != "8080" || cfg.Server.DailySalt != "pepper" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Server.JWTExpiry != 48*time.Hour || !cfg.Server.Secure {
		t.Fatalf("server opts = %+v", cfg.Server)
	}

	t.Setenv("JWT_EXPIRES_DAYS", "soon")
	if got := loadConfig().Server.JWTExpiry; got != 14*24*time.Hour {
		t.Fatalf("bad expiry fell back to %v", got)
	}
}
