// Package logging provides the shared zap logger and helpers that
// keep credentials and addresses out of the log stream.
package logging

import (
	"strings"

	"go.uber.org/zap"
)

// New builds the process-wide logger. Production config (JSON, info
// level) everywhere except dev, which gets the console encoder.
func New(env string) (*zap.Logger, error) {
	if env == "dev" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// MaskEmail redacts the local part of an address so log lines cannot
// be harvested for valid usernames: "alice@example.com" becomes
// "a***@example.com". Values without an '@' are fully redacted.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
