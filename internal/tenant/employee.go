package tenant

import "time"

// Employee is a company worker account authenticated under the
// employee guard.
type Employee struct {
	ID             int64      `json:"id"`
	CompanyID      int64      `json:"company_id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Identification string     `json:"identification"`
	Phone          string     `json:"phone,omitempty"`
	IsActive       bool       `json:"is_active"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP    string     `json:"last_login_ip,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`

	// Roles is populated on detail and list responses.
	Roles []string `json:"roles,omitempty"`
}

// EmployeeInput carries validated fields for creating an employee.
type EmployeeInput struct {
	Name           string `json:"name" validate:"required,max=255"`
	Email          string `json:"email" validate:"required,email,max=255"`
	Identification string `json:"identification" validate:"required,min=10,max=13"`
	Phone          string `json:"phone" validate:"omitempty,max=20"`
}

// EmployeeOverride is a direct permission grant or revocation shown in
// employee detail responses.
type EmployeeOverride struct {
	Permission string `json:"permission"`
	Granted    bool   `json:"granted"`
}
