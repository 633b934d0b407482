package parties

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/maelza/maelza-erp/internal/shared"
)

type Service struct {
	repo     Repository
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New(), now: time.Now}
}

// Page is one page of parties.
type Page struct {
	Parties    []Party
	Pagination shared.Pagination
}

func (s *Service) Create(ctx context.Context, role Role, req CreateRequest) (*Party, error) {
	if _, ok := role.table(); !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	if err := s.check(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	party := Party{
		ID:        uuid.New(),
		Role:      role,
		Name:      strings.TrimSpace(req.Name),
		TaxID:     trimmed(req.TaxID),
		Email:     trimmed(req.Email),
		Phone:     trimmed(req.Phone),
		Address:   trimmed(req.Address),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, party); err != nil {
		return nil, fmt.Errorf("create %s: %w", role, err)
	}
	return &party, nil
}

func (s *Service) Update(ctx context.Context, role Role, id uuid.UUID, req UpdateRequest) (*Party, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	existing, err := s.repo.Get(ctx, role, id)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", role, err)
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.TaxID != nil {
		updates["tax_id"] = trimmed(req.TaxID)
	}
	if req.Email != nil {
		updates["email"] = trimmed(req.Email)
	}
	if req.Phone != nil {
		updates["phone"] = trimmed(req.Phone)
	}
	if req.Address != nil {
		updates["address"] = trimmed(req.Address)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return existing, nil
	}
	if err := s.repo.Update(ctx, role, id, updates); err != nil {
		return nil, fmt.Errorf("update %s: %w", role, err)
	}
	return s.repo.Get(ctx, role, id)
}

func (s *Service) Get(ctx context.Context, role Role, id uuid.UUID) (*Party, error) {
	return s.repo.Get(ctx, role, id)
}

func (s *Service) List(ctx context.Context, role Role, req ListRequest) (Page, error) {
	req.Page, req.PerPage = shared.NormalizePage(req.Page, req.PerPage)
	parties, total, err := s.repo.List(ctx, role, req)
	if err != nil {
		return Page{}, err
	}
	return Page{Parties: parties, Pagination: shared.NewPagination(req.Page, req.PerPage, total)}, nil
}

// Delete removes a party that no document references.
func (s *Service) Delete(ctx context.Context, role Role, id uuid.UUID) error {
	return s.repo.Delete(ctx, role, id)
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// trimmed maps blank optional strings to nil.
func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
