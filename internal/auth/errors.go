// Package auth implements the identity core: password hashing and
// verification, session token issuance, and the password lifecycle
// state machine. Handlers translate the sentinel errors defined here
// into HTTP responses; every authentication failure collapses to
// ErrInvalidCredentials before it leaves the service so callers can
// not distinguish unknown accounts from wrong passwords or
// deactivated accounts.
package auth

import "errors"

// ErrInvalidCredentials covers bad email, bad password and inactive
// account uniformly. Handlers must never return anything more
// specific for a failed login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrRateLimited is returned when the abuse defense layer refuses an
// attempt before credentials are even examined.
var ErrRateLimited = errors.New("too many attempts")

// ErrTokenInvalid covers expired, already-used and unknown lifecycle
// tokens. Safe to report: the caller already possesses the token.
var ErrTokenInvalid = errors.New("token invalid")

// ErrWeakPassword is returned when a candidate password fails the
// strength policy. The policy wraps it with a human-readable reason.
var ErrWeakPassword = errors.New("weak password")

// ErrUnauthorized covers every session token failure (malformed,
// expired, bad signature, wrong purpose, wrong issuer/audience).
// The distinction is logged, never returned.
var ErrUnauthorized = errors.New("unauthorized")

// ErrForbiddenOperation is returned when the caller's role lacks the
// capability for an operation entirely.
var ErrForbiddenOperation = errors.New("forbidden")

// ErrForbiddenField is returned when a role attempts to mutate a
// field outside its allow-list. The whole update is rejected; no
// partial write happens.
var ErrForbiddenField = errors.New("forbidden field")

// ErrSelfProtection is returned when a caller tries to deactivate,
// delete or demote their own account.
var ErrSelfProtection = errors.New("operation not permitted on own account")

// ErrEmailExists is returned when creating or updating a user would
// duplicate an existing email.
var ErrEmailExists = errors.New("email already exists")

// ErrNotFound is returned when an admin operation targets a user id
// that does not exist.
var ErrNotFound = errors.New("user not found")
