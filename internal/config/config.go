// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Each field
// corresponds to an environment variable. Secrets stay strings and
// are never logged.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	JWTIssuer      string // issuer claim pinned per deployment
	JWTAudience    string // audience claim pinned per deployment
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days

	LoginRateLimit  int           // login attempts allowed per source per window
	LoginRateWindow time.Duration // sliding window length
}

// Load reads configuration from the environment. Required variables
// are enforced by must() and missing values cause the program to exit
// with a fatal log message; tunables fall back to documented defaults.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"), // empty allowed
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		JWTIssuer:      envStr("JWT_ISSUER", "member-gate"),
		JWTAudience:    envStr("JWT_AUDIENCE", "member-gate"),
		AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 30),
		RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 7),

		LoginRateLimit:  envInt("LOGIN_RATE_LIMIT", 5),
		LoginRateWindow: envDur("LOGIN_RATE_WINDOW", time.Minute),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
