package tenant

import "time"

// Company is a tenant business registered by an owner.
type Company struct {
	ID        int64      `json:"id"`
	OwnerID   int64      `json:"owner_id"`
	Name      string     `json:"name"`
	TradeName string     `json:"trade_name,omitempty"`
	RUC       string     `json:"ruc"`
	Address   string     `json:"address,omitempty"`
	City      string     `json:"city,omitempty"`
	Province  string     `json:"province,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Email     string     `json:"email,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// CompanyInput carries validated fields for creating or updating a company.
type CompanyInput struct {
	Name      string `json:"name" validate:"required,max=255"`
	TradeName string `json:"trade_name" validate:"omitempty,max=255"`
	RUC       string `json:"ruc" validate:"required,len=13,numeric"`
	Address   string `json:"address" validate:"omitempty,max=255"`
	City      string `json:"city" validate:"omitempty,max=100"`
	Province  string `json:"province" validate:"omitempty,max=100"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
	Email     string `json:"email" validate:"omitempty,email,max=255"`
}
