// Package access decides who may use the table engine.
//
// Identities come from the external authentication collaborator and are
// threaded through each request in its context.Context. Nothing in this
// package keeps a process-wide "current user".
package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/tablekit/internal/core"
)

// Status is a user's approval state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Role is a user's role. The zero Role means none assigned.
type Role string

const (
	RoleNone   Role = ""
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", core.Invalid("status", "unknown status %q", s)
}

// ParseRole validates a role name. The empty string and "none" clear the role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleNone, RoleMember, RoleAdmin:
		return r, nil
	case "none", "null":
		return RoleNone, nil
	}
	return "", core.Invalid("role", "unknown role %q", s)
}

// Identity is the caller of an operation.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Status Status `json:"status"`
	Role   Role   `json:"role"`
}

// IsAdmin reports whether the identity is an approved admin.
func (id Identity) IsAdmin() bool {
	return id.Status == StatusApproved && id.Role == RoleAdmin
}

func (id Identity) String() string {
	return fmt.Sprintf("%s (%s, %s)", id.UserID, id.Status, roleLabel(id.Role))
}

func roleLabel(r Role) string {
	if r == RoleNone {
		return "no role"
	}
	return string(r)
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity carried by ctx.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireIdentity returns the caller or core.ErrUnauthenticated.
func RequireIdentity(ctx context.Context) (Identity, error) {
	id, ok := IdentityFrom(ctx)
	if !ok || id.UserID == "" {
		return Identity{}, core.ErrUnauthenticated
	}
	return id, nil
}
