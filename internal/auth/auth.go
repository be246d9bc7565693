// Package auth implements the three-guard authentication scheme:
// superadmin, owner, and employee principals live in separate tables and
// separate token namespaces. A token minted under one guard never
// authenticates another guard's routes.
package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account inactive")
	ErrCompanyInactive    = errors.New("company inactive")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenMissing       = errors.New("token missing")
	ErrNotFound           = errors.New("principal not found")
	ErrWrongGuard         = errors.New("token issued for a different guard")

	ErrFamilyNotFound = errors.New("refresh token family not found")
	ErrFamilyRevoked  = errors.New("refresh token family revoked")
	ErrTokenReuse     = errors.New("refresh token reuse detected")
)

// Guard is an independent authentication namespace.
type Guard string

const (
	GuardSuperadmin Guard = "superadmin"
	GuardOwner      Guard = "owner"
	GuardEmployee   Guard = "employee"
)

// ParseGuard validates a guard name.
func ParseGuard(s string) (Guard, error) {
	switch Guard(s) {
	case GuardSuperadmin, GuardOwner, GuardEmployee:
		return Guard(s), nil
	}
	return "", fmt.Errorf("%w: unknown guard %q", ErrTokenInvalid, s)
}

// Principal is an authenticated actor under exactly one guard.
type Principal struct {
	Guard     Guard  `json:"guard"`
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Active    bool   `json:"is_active"`
	CompanyID int64  `json:"company_id,omitempty"` // employee guard only
}

// Account is the stored form of a principal, including credential and
// status fields that never leave the auth package.
type Account struct {
	ID            int64
	Email         string
	Name          string
	PasswordHash  string
	Active        bool
	CompanyID     int64 // employee guard only
	CompanyActive bool  // employee guard only
	LastLoginAt   *time.Time
	LastLoginIP   string
}

// Principal converts a stored account to its public principal form.
func (a *Account) Principal(guard Guard) *Principal {
	return &Principal{
		Guard:     guard,
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Active:    a.Active,
		CompanyID: a.CompanyID,
	}
}
