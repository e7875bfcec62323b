package access

import (
	"context"
	"slices"

	"github.com/JonMunkholm/tablekit/internal/core"
)

// Redirect targets used by Authorize.
const (
	LoginPath   = "/login"
	LandingPath = "/"
)

// PendingApprovalReason is shown to users who are not yet approved.
const PendingApprovalReason = "Your account is pending approval"

// Decision is the outcome of Authorize. When Allow is false, Redirect names
// where the caller should be sent and Reason optionally explains why.
type Decision struct {
	Allow    bool
	Redirect string
	Reason   string
}

// Authorize gates an operation on identity and role. A nil identity goes to
// the login page; an identity that is not approved goes to the login page
// with the pending approval reason; a role outside required goes to the
// landing page. An empty required list admits every approved identity.
func Authorize(id *Identity, required ...Role) Decision {
	if id == nil || id.UserID == "" {
		return Decision{Redirect: LoginPath}
	}
	if id.Status != StatusApproved {
		return Decision{Redirect: LoginPath, Reason: PendingApprovalReason}
	}
	if len(required) > 0 && !slices.Contains(required, id.Role) {
		return Decision{Redirect: LandingPath}
	}
	return Decision{Allow: true}
}

// Err converts a denial into the error taxonomy.
func (d Decision) Err(action string) error {
	switch {
	case d.Allow:
		return nil
	case d.Redirect == LoginPath && d.Reason == "":
		return core.ErrUnauthenticated
	case d.Redirect == LoginPath:
		return core.Forbidden(action, d.Reason)
	default:
		return core.Forbidden(action, "role not permitted")
	}
}

// Require authorizes the identity carried by ctx.
func Require(ctx context.Context, action string, required ...Role) (Identity, error) {
	id, ok := IdentityFrom(ctx)
	var idp *Identity
	if ok {
		idp = &id
	}
	if err := Authorize(idp, required...).Err(action); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// CanManageTable reports whether id may act on a table owned by ownerID.
func CanManageTable(id Identity, ownerID string) bool {
	return id.IsAdmin() || (id.UserID != "" && id.UserID == ownerID)
}
