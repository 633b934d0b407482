// Package parties keeps the customer and supplier directories that sales and
// purchases reference.
package parties

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role selects the customer or supplier directory.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSupplier Role = "supplier"
)

func (r Role) table() (string, bool) {
	switch r {
	case RoleCustomer:
		return "customers", true
	case RoleSupplier:
		return "suppliers", true
	}
	return "", false
}

var (
	ErrNotFound      = errors.New("parties: record not found")
	ErrAlreadyExists = errors.New("parties: tax id already registered")
	ErrInUse         = errors.New("parties: referenced by documents")
	ErrValidation    = errors.New("parties: invalid input")
)

// Party is a customer or supplier.
type Party struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Name      string    `json:"name"`
	TaxID     *string   `json:"taxId,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Address   *string   `json:"address,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	Name    string  `json:"name" validate:"required,max=200"`
	TaxID   *string `json:"taxId,omitempty" validate:"omitempty,max=20"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=300"`
}

type UpdateRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	TaxID    *string `json:"taxId,omitempty" validate:"omitempty,max=20"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address  *string `json:"address,omitempty" validate:"omitempty,max=300"`
	IsActive *bool   `json:"isActive,omitempty"`
}

type ListRequest struct {
	Search   string
	IsActive *bool
	Page     int
	PerPage  int
}
