package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maelza/maelza-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error)
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	GetStockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error)
	CreateProduct(ctx context.Context, p Product, opening *Movement) error
	UpdateProduct(ctx context.Context, id uuid.UUID, updates map[string]any) (Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

// Service manages the catalog and exposes its stock journal. After creation,
// stock only changes through sale and purchase documents.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, validate: validator.New(), now: time.Now}
}

// CreateProduct registers a product. Codes are trimmed and upper-cased; a
// positive opening stock is journalled as an inbound movement.
func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (Product, error) {
	if err := s.check(in); err != nil {
		return Product{}, err
	}
	if err := checkPrice("costPrice", in.CostPrice); err != nil {
		return Product{}, err
	}
	if err := checkPrice("salePrice", in.SalePrice); err != nil {
		return Product{}, err
	}
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = "unit"
	}
	now := s.now().UTC()
	p := Product{
		ID:        uuid.New(),
		Code:      normalizeCode(in.Code),
		Name:      strings.TrimSpace(in.Name),
		Unit:      unit,
		CostPrice: in.CostPrice.Round(2),
		SalePrice: in.SalePrice.Round(2),
		Stock:     in.Stock,
		MinStock:  in.MinStock,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Code == "" || p.Name == "" {
		return Product{}, fmt.Errorf("%w: code and name are required", ErrInvalidProduct)
	}
	var opening *Movement
	if p.Stock > 0 {
		opening = &Movement{
			ID:        uuid.New(),
			ProductID: p.ID,
			Type:      MovementIn,
			Quantity:  p.Stock,
			Balance:   p.Stock,
			RefKind:   OpeningRef,
			Note:      "opening stock",
			CreatedAt: now,
		}
	}
	if err := s.repo.CreateProduct(ctx, p, opening); err != nil {
		return Product{}, err
	}
	return p, nil
}

// UpdateProduct applies the supplied fields.
func (s *Service) UpdateProduct(ctx context.Context, id uuid.UUID, in UpdateProductInput) (Product, error) {
	if id == uuid.Nil {
		return Product{}, ErrProductRequired
	}
	if err := s.check(in); err != nil {
		return Product{}, err
	}
	updates := make(map[string]any)
	if in.Code != nil {
		code := normalizeCode(*in.Code)
		if code == "" {
			return Product{}, fmt.Errorf("%w: code must not be blank", ErrInvalidProduct)
		}
		updates["code"] = code
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Product{}, fmt.Errorf("%w: name must not be blank", ErrInvalidProduct)
		}
		updates["name"] = name
	}
	if in.Unit != nil {
		updates["unit"] = strings.TrimSpace(*in.Unit)
	}
	if in.CostPrice != nil {
		if err := checkPrice("costPrice", *in.CostPrice); err != nil {
			return Product{}, err
		}
		updates["cost_price"] = in.CostPrice.Round(2)
	}
	if in.SalePrice != nil {
		if err := checkPrice("salePrice", *in.SalePrice); err != nil {
			return Product{}, err
		}
		updates["sale_price"] = in.SalePrice.Round(2)
	}
	if in.MinStock != nil {
		updates["min_stock"] = *in.MinStock
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(updates) == 0 {
		return s.repo.GetProduct(ctx, id)
	}
	return s.repo.UpdateProduct(ctx, id, updates)
}

// DeleteProduct removes a product that no document or journal row references.
// Referenced products can be deactivated instead.
func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrProductRequired
	}
	return s.repo.DeleteProduct(ctx, id)
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field()+" "+fe.Tag())
		}
		return fmt.Errorf("%w: %s", ErrInvalidProduct, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", ErrInvalidProduct, err)
}

func checkPrice(field string, price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidProduct, field)
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ProductPage is one page of products with its pagination metadata.
type ProductPage struct {
	Products   []Product
	Pagination shared.Pagination
}

// ListProducts lists products matching filter.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) (ProductPage, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return ProductPage{}, err
	}
	return ProductPage{Products: products, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// LowStock lists active products whose stock is at or below their minimum.
func (s *Service) LowStock(ctx context.Context, page, perPage int) (ProductPage, error) {
	return s.ListProducts(ctx, ProductFilter{ActiveOnly: true, LowStock: true, Page: page, PerPage: perPage})
}

// GetProduct returns a single product.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	if id == uuid.Nil {
		return Product{}, ErrProductRequired
	}
	return s.repo.GetProduct(ctx, id)
}

// GetStockCard lists the stock journal of a product.
func (s *Service) GetStockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	if filter.ProductID == uuid.Nil {
		return nil, ErrProductRequired
	}
	if _, err := s.repo.GetProduct(ctx, filter.ProductID); err != nil {
		return nil, err
	}
	return s.repo.GetStockCard(ctx, filter)
}
