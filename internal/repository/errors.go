// Package repository persists users and lifecycle tokens in MySQL.
// Sentinel errors let the service layer distinguish failure modes
// without string matching.
package repository

import "errors"

// ErrEmailExists is returned when an insert or update would duplicate
// the unique email column.
var ErrEmailExists = errors.New("email already exists")

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")
