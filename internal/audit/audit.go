package audit

import (
	"context"

	"github.com/andino-labs/andino/internal/auth"
)

// Event represents a single auditable action in the system.
type Event struct {
	CompanyID    *int64 // nil for platform-level events
	ActorGuard   string // "superadmin", "owner", "employee"; "" for system events
	ActorID      *int64
	Action       string // e.g. "auth.login", "user.created", "access.denied"
	ResourceType string // e.g. "company", "user", "role"
	ResourceID   *int64
	Metadata     map[string]any
	IP           string
}

const (
	ActionLoginSucceeded = "auth.login"
	ActionLoginFailed    = "auth.login_failed"
	ActionLoginInactive  = "auth.login_inactive"
	ActionLogout         = "auth.logout"
	ActionTokenRefreshed = "auth.token_refreshed"
	ActionTokenReuse     = "auth.token_reuse_detected"

	ActionAccessDenied = "access.denied"

	ActionCompanyCreated  = "company.created"
	ActionCompanyUpdated  = "company.updated"
	ActionCompanyToggled  = "company.status_toggled"
	ActionCompanyDeleted  = "company.deleted"
	ActionCompanyRestored = "company.restored"

	ActionUserCreated       = "user.created"
	ActionUserUpdated       = "user.updated"
	ActionUserToggled       = "user.status_toggled"
	ActionUserDeleted       = "user.deleted"
	ActionUserRestored      = "user.restored"
	ActionUserPasswordReset = "user.password_reset"

	ActionRoleCreated = "role.created"
	ActionRoleUpdated = "role.updated"
	ActionRoleDeleted = "role.deleted"
	ActionRoleSynced  = "role.permissions_synced"

	ActionFileRegistered = "file.registered"
	ActionFileDeleted    = "file.deleted"

	ActionCategoryCreated = "category.created"
	ActionCategoryUpdated = "category.updated"
	ActionCategoryDeleted = "category.deleted"

	ActionUserRolesSynced           = "user.roles_synced"
	ActionUserRoleRemoved           = "user.role_removed"
	ActionPermissionGranted         = "user.permission_granted"
	ActionPermissionRevoked         = "user.permission_revoked"
	ActionPermissionOverrideCleared = "user.permission_override_cleared"
)

const (
	MetadataPermission = "permission"
	MetadataReason     = "reason"
	MetadataEmail      = "email"
)

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }

// EventFor builds an event attributed to the authenticated principal,
// if any is present on the context.
func EventFor(ctx context.Context, action string) Event {
	return eventForPrincipal(auth.GetPrincipal(ctx), action)
}
