package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/docstore"
)

// DefaultUsersCollection holds one document per user, keyed by user id.
const DefaultUsersCollection = "users"

// User is a stored user profile.
type User struct {
	ID        string     `json:"id" mapstructure:"-"`
	Email     string     `json:"email" mapstructure:"email"`
	Name      string     `json:"name" mapstructure:"name"`
	Status    Status     `json:"status" mapstructure:"status"`
	Role      Role       `json:"role" mapstructure:"role"`
	CreatedAt time.Time  `json:"createdAt" mapstructure:"createdAt"`
	LastLogin *time.Time `json:"lastLogin" mapstructure:"lastLogin"`
}

// Identity returns the identity the user acts as.
func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Email: u.Email, Status: u.Status, Role: u.Role}
}

// Users manages user profiles and their approval state.
type Users struct {
	store      docstore.Store
	collection string
	flag       BootstrapFlag
	audit      *core.AuditLog
	now        func() time.Time
}

// UsersOption configures Users.
type UsersOption func(*Users)

// WithUsersCollection overrides the users collection name.
func WithUsersCollection(name string) UsersOption {
	return func(u *Users) { u.collection = name }
}

// WithAudit records status and role changes.
func WithAudit(a *core.AuditLog) UsersOption {
	return func(u *Users) { u.audit = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) UsersOption {
	return func(u *Users) { u.now = now }
}

// NewUsers creates the user service. A nil flag uses a StoreFlag on store.
func NewUsers(store docstore.Store, flag BootstrapFlag, opts ...UsersOption) *Users {
	if flag == nil {
		flag = NewStoreFlag(store)
	}
	u := &Users{store: store, collection: DefaultUsersCollection, flag: flag, now: time.Now}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Register creates the profile for a newly authenticated user. The first
// user to claim the bootstrap flag becomes an approved admin; everyone else
// starts pending with no role.
func (u *Users) Register(ctx context.Context, userID, email, name string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, core.Invalid("userId", "user id is required")
	}
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, core.Invalid("email", "invalid email address %q", email)
	}

	if _, err := u.store.Get(ctx, u.collection, userID); err == nil {
		return User{}, core.Invalid("userId", "user %s is already registered", userID)
	} else if !docstore.IsNotFound(err) {
		return User{}, fmt.Errorf("check user %s: %w", userID, err)
	}

	user := User{
		ID:        userID,
		Email:     email,
		Name:      strings.TrimSpace(name),
		Status:    StatusPending,
		Role:      RoleNone,
		CreatedAt: u.now().UTC(),
	}

	first, err := u.flag.Claim(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if first {
		user.Status = StatusApproved
		user.Role = RoleAdmin
	}

	if err := u.store.Create(ctx, u.collection, userID, userDocument(user)); err != nil {
		if first {
			if rerr := u.flag.Release(ctx, userID); rerr != nil {
				slog.Error("bootstrap flag not released", "user_id", userID, "error", rerr)
			}
		}
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return User{}, core.Invalid("userId", "user %s is already registered", userID)
		}
		return User{}, fmt.Errorf("create user %s: %w", userID, err)
	}

	slog.Info("user registered",
		"user_id", userID,
		"status", user.Status,
		"role", user.Role,
		"bootstrap_admin", first,
	)
	return user, nil
}

// Login records a sign-in and returns the profile.
func (u *Users) Login(ctx context.Context, userID string) (User, error) {
	now := u.now().UTC()
	if err := u.store.Update(ctx, u.collection, userID, map[string]any{"lastLogin": now}); err != nil {
		if docstore.IsNotFound(err) {
			return User{}, core.NotFound("user", userID)
		}
		return User{}, fmt.Errorf("record login for %s: %w", userID, err)
	}
	return u.Get(ctx, userID)
}

// Get returns one profile.
func (u *Users) Get(ctx context.Context, userID string) (User, error) {
	doc, err := u.store.Get(ctx, u.collection, userID)
	if err != nil {
		if docstore.IsNotFound(err) {
			return User{}, core.NotFound("user", userID)
		}
		return User{}, fmt.Errorf("get user %s: %w", userID, err)
	}
	return decodeUser(doc)
}

// ListUsers returns every profile ordered by creation time. Admin only.
func (u *Users) ListUsers(ctx context.Context) ([]User, error) {
	if _, err := Require(ctx, "list users", RoleAdmin); err != nil {
		return nil, err
	}
	docs, err := u.store.List(ctx, u.collection, docstore.Query{})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]User, 0, len(docs))
	for _, doc := range docs {
		user, err := decodeUser(doc)
		if err != nil {
			slog.Warn("skipping malformed user", "user_id", doc.ID, "error", err)
			continue
		}
		users = append(users, user)
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// SetStatus approves, rejects or resets a user. Admin only.
func (u *Users) SetStatus(ctx context.Context, userID string, status Status) (User, error) {
	actor, err := Require(ctx, "set user status", RoleAdmin)
	if err != nil {
		return User{}, err
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return User{}, err
	}
	if actor.UserID == userID && status != StatusApproved {
		return User{}, core.Invalid("status", "admins cannot revoke their own approval")
	}

	if err := u.update(ctx, userID, map[string]any{"status": string(status)}); err != nil {
		return User{}, err
	}
	u.audit.Record(ctx, core.AuditLogParams{
		Action:    core.ActionUserStatus,
		UserID:    actor.UserID,
		UserEmail: actor.Email,
		Detail:    fmt.Sprintf("%s -> %s", userID, status),
	})
	return u.Get(ctx, userID)
}

// SetRole assigns or clears a role. Only approved users can hold a role.
// Admin only.
func (u *Users) SetRole(ctx context.Context, userID string, role Role) (User, error) {
	actor, err := Require(ctx, "set user role", RoleAdmin)
	if err != nil {
		return User{}, err
	}
	if _, err := ParseRole(string(role)); err != nil {
		return User{}, err
	}
	if actor.UserID == userID && role != RoleAdmin {
		return User{}, core.Invalid("role", "admins cannot remove their own admin role")
	}

	target, err := u.Get(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if role != RoleNone && target.Status != StatusApproved {
		return User{}, core.Invalid("role", "user %s must be approved before a role is assigned", userID)
	}

	if err := u.update(ctx, userID, map[string]any{"role": roleValue(role)}); err != nil {
		return User{}, err
	}
	u.audit.Record(ctx, core.AuditLogParams{
		Action:    core.ActionUserRole,
		UserID:    actor.UserID,
		UserEmail: actor.Email,
		Detail:    fmt.Sprintf("%s -> %s", userID, roleLabel(role)),
	})
	return u.Get(ctx, userID)
}

// Resolve loads the identity for an authenticated user id. Unknown users
// resolve to a pending identity without a role.
func (u *Users) Resolve(ctx context.Context, userID, email string) (Identity, error) {
	user, err := u.Get(ctx, userID)
	if err != nil {
		var nf *core.NotFoundError
		if errors.As(err, &nf) {
			return Identity{UserID: userID, Email: email, Status: StatusPending}, nil
		}
		return Identity{}, err
	}
	return user.Identity(), nil
}

func (u *Users) update(ctx context.Context, userID string, fields map[string]any) error {
	if err := u.store.Update(ctx, u.collection, userID, fields); err != nil {
		if docstore.IsNotFound(err) {
			return core.NotFound("user", userID)
		}
		return fmt.Errorf("update user %s: %w", userID, err)
	}
	return nil
}

func roleValue(r Role) any {
	if r == RoleNone {
		return nil
	}
	return string(r)
}

func userDocument(u User) map[string]any {
	return map[string]any{
		"email":     u.Email,
		"name":      u.Name,
		"status":    string(u.Status),
		"role":      roleValue(u.Role),
		"createdAt": u.CreatedAt,
		"lastLogin": nil,
	}
}

func decodeUser(doc docstore.Document) (User, error) {
	var user User
	if err := core.DecodeDocument(doc.Data, &user); err != nil {
		return User{}, fmt.Errorf("decode user %s: %w", doc.ID, err)
	}
	user.ID = doc.ID
	return user, nil
}
