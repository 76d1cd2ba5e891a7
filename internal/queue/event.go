// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// TokenIssuedQueue is the durable queue the delivery collaborator
// (mailer) consumes from.
const TokenIssuedQueue = "auth.token.issued"

// TokenIssuedEvent is published whenever a setup or reset token is
// issued. The plain token travels only inside this event so the
// delivery channel can hand it to the user; it is never logged and
// never returned through the admin API.
type TokenIssuedEvent struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Kind      string    `json:"kind"` // setup | reset
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	IssuedBy  string    `json:"issued_by,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}
