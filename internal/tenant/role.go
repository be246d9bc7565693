package tenant

import "time"

// Role groups permissions. Global roles (nil CompanyID) are seeded
// system roles shared by every company; company roles are custom.
type Role struct {
	ID          int64     `json:"id"`
	CompanyID   *int64    `json:"company_id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Permissions is populated on detail responses.
	Permissions []string `json:"permissions,omitempty"`

	// EmployeeCount is populated on list responses.
	EmployeeCount int64 `json:"employee_count"`
}

// RoleInput carries validated fields for creating or updating a role.
type RoleInput struct {
	Name        string   `json:"name" validate:"required,max=255"`
	DisplayName string   `json:"display_name" validate:"required,max=255"`
	Description string   `json:"description" validate:"omitempty,max=500"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required,max=255"`
}
