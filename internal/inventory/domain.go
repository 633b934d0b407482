package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Stock is the authoritative on-hand quantity.
type Product struct {
	ID        uuid.UUID
	Code      string
	Name      string
	Unit      string
	CostPrice decimal.Decimal
	SalePrice decimal.Decimal
	Stock     int
	MinStock  int
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLowStock reports whether stock has fallen to the reorder threshold.
func (p Product) IsLowStock() bool {
	return p.Stock <= p.MinStock
}

// MovementType enumerates stock journal directions.
type MovementType string

const (
	// MovementIn represents an inbound movement.
	MovementIn MovementType = "IN"
	// MovementOut represents an outbound movement.
	MovementOut MovementType = "OUT"
)

// Movement is one stock journal row written alongside a stock change.
type Movement struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Type      MovementType
	Quantity  int
	Balance   int
	RefKind   string
	RefID     uuid.UUID
	RefNumber string
	Note      string
	CreatedAt time.Time
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search     string
	ActiveOnly bool
	LowStock   bool
	Page       int
	PerPage    int
}

// StockCardFilter filters movement history of one product.
type StockCardFilter struct {
	ProductID uuid.UUID
	From      time.Time
	To        time.Time
	Limit     int
}

// Drift reports a product whose stock disagrees with its journal.
type Drift struct {
	ProductID      uuid.UUID
	Code           string
	Stock          int
	JournalBalance int
}

// CreateProductInput carries a new catalog entry. Stock is the opening balance;
// afterwards it only moves through sale and purchase documents.
type CreateProductInput struct {
	Code      string          `json:"code" validate:"required,max=50"`
	Name      string          `json:"name" validate:"required,max=200"`
	Unit      string          `json:"unit,omitempty" validate:"omitempty,max=20"`
	CostPrice decimal.Decimal `json:"costPrice"`
	SalePrice decimal.Decimal `json:"salePrice"`
	Stock     int             `json:"stock" validate:"gte=0"`
	MinStock  int             `json:"minStock" validate:"gte=0"`
}

// UpdateProductInput applies only the supplied fields. Stock is not editable.
type UpdateProductInput struct {
	Code      *string          `json:"code,omitempty" validate:"omitempty,min=1,max=50"`
	Name      *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Unit      *string          `json:"unit,omitempty" validate:"omitempty,min=1,max=20"`
	CostPrice *decimal.Decimal `json:"costPrice,omitempty"`
	SalePrice *decimal.Decimal `json:"salePrice,omitempty"`
	MinStock  *int             `json:"minStock,omitempty" validate:"omitempty,gte=0"`
	IsActive  *bool            `json:"isActive,omitempty"`
}

// OpeningRef tags the journal row written for a product's initial stock.
const OpeningRef = "opening"

var (
	// ErrProductNotFound indicates the product does not exist.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrProductRequired is returned when a lookup omits the product id.
	ErrProductRequired = errors.New("inventory: product required")
	// ErrInvalidProduct covers malformed catalog input.
	ErrInvalidProduct = errors.New("inventory: invalid product")
	// ErrProductExists indicates the product code is taken.
	ErrProductExists = errors.New("inventory: product code already exists")
	// ErrProductInUse indicates documents or journal rows reference the product.
	ErrProductInUse = errors.New("inventory: product referenced by documents")
)
