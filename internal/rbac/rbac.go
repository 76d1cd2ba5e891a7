// Package rbac decides what a verified session may do. Capabilities
// are coarse per-operation grants; client-record updates additionally
// go through a per-role field allow-list so a staff session can touch
// nothing but the notes fields. Both decisions live in explicit data
// structures rather than scattered branches so they stay auditable.
package rbac

import (
	"fmt"
	"sort"

	"github.com/amirkhv/member-gate/internal/auth"
	"github.com/amirkhv/member-gate/internal/model"
)

// Capability names an operation class a role may or may not perform.
type Capability string

const (
	// CapUserAdmin gates account management: create, list, update,
	// deactivate users and initiate password resets.
	CapUserAdmin Capability = "user:admin"
	// CapClientWrite gates updates to client records; field-level
	// restrictions apply on top via CheckClientFieldDiff.
	CapClientWrite Capability = "client:write"
	// CapClientDelete gates client-record deletion.
	CapClientDelete Capability = "client:delete"
)

// capabilityRoles maps each capability to the roles holding it.
var capabilityRoles = map[Capability]map[string]bool{
	CapUserAdmin:    {model.RoleAdmin: true},
	CapClientWrite:  {model.RoleAdmin: true, model.RoleStaff: true},
	CapClientDelete: {model.RoleAdmin: true},
}

// clientFieldAllowList maps a role to the client-record fields it may
// mutate. A nil set means unrestricted.
var clientFieldAllowList = map[string]map[string]bool{
	model.RoleAdmin: nil,
	model.RoleStaff: {"notes": true},
}

// Authorize checks a verified session against the capability required
// for an operation. A session issued under a mandated password change
// holds no capabilities at all, whatever its role: until the password
// is rotated the only permitted operation is the change itself, and
// that one never consults a capability.
func Authorize(claims auth.Claims, capability Capability) error {
	if claims.SetupScope {
		return fmt.Errorf("%w: session is restricted to password change", auth.ErrForbiddenOperation)
	}
	roles, ok := capabilityRoles[capability]
	if !ok || !roles[claims.Role] {
		return fmt.Errorf("%w: role %q lacks %s", auth.ErrForbiddenOperation, claims.Role, capability)
	}
	return nil
}

// CheckClientFieldDiff validates the set of fields a client-record
// update wants to touch against the caller role's allow-list. Any
// disallowed field rejects the entire update; nothing is silently
// dropped, so the caller's full intent is either honored or refused.
func CheckClientFieldDiff(role string, fields []string) error {
	allowed, ok := clientFieldAllowList[role]
	if !ok {
		return fmt.Errorf("%w: unknown role %q", auth.ErrForbiddenOperation, role)
	}
	if allowed == nil {
		return nil
	}
	var rejected []string
	for _, f := range fields {
		if !allowed[f] {
			rejected = append(rejected, f)
		}
	}
	if len(rejected) > 0 {
		sort.Strings(rejected)
		return fmt.Errorf("%w: role %q may not set %v", auth.ErrForbiddenField, role, rejected)
	}
	return nil
}

// AuthorizeClientUpdate is the single entry point the client-CRUD
// collaborator calls before applying an update: capability first,
// then the field diff.
func AuthorizeClientUpdate(claims auth.Claims, fields []string) error {
	if err := Authorize(claims, CapClientWrite); err != nil {
		return err
	}
	return CheckClientFieldDiff(claims.Role, fields)
}

// EnsureNotSelf refuses destructive account operations whose target
// is the caller itself.
func EnsureNotSelf(claims auth.Claims, targetID string) error {
	if claims.UserID() == targetID {
		return auth.ErrSelfProtection
	}
	return nil
}
