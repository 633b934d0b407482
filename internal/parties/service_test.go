package parties

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/maelza/maelza-erp/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	parties map[uuid.UUID]Party
	inUse   map[uuid.UUID]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{parties: make(map[uuid.UUID]Party), inUse: make(map[uuid.UUID]bool)}
}

func (m *memoryRepo) Get(_ context.Context, role Role, id uuid.UUID) (*Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parties[id]
	if !ok || p.Role != role {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *memoryRepo) List(_ context.Context, role Role, req ListRequest) ([]Party, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Party
	for _, p := range m.parties {
		if p.Role != role {
			continue
		}
		if req.IsActive != nil && p.IsActive != *req.IsActive {
			continue
		}
		if req.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(req.Search)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	start := shared.Offset(req.Page, req.PerPage)
	if start > total {
		start = total
	}
	end := start + req.PerPage
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (m *memoryRepo) Create(_ context.Context, p Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.TaxID != nil {
		for _, existing := range m.parties {
			if existing.Role == p.Role && existing.TaxID != nil && *existing.TaxID == *p.TaxID {
				return ErrAlreadyExists
			}
		}
	}
	m.parties[p.ID] = p
	return nil
}

func (m *memoryRepo) Update(_ context.Context, role Role, id uuid.UUID, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parties[id]
	if !ok || p.Role != role {
		return ErrNotFound
	}
	for column, value := range updates {
		switch column {
		case "name":
			p.Name = value.(string)
		case "email":
			p.Email = value.(*string)
		case "tax_id":
			p.TaxID = value.(*string)
		case "phone":
			p.Phone = value.(*string)
		case "address":
			p.Address = value.(*string)
		case "is_active":
			p.IsActive = value.(bool)
		}
	}
	m.parties[id] = p
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, role Role, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parties[id]
	if !ok || p.Role != role {
		return ErrNotFound
	}
	if m.inUse[id] {
		return ErrInUse
	}
	delete(m.parties, id)
	return nil
}

func str(s string) *string { return &s }

func newTestService(repo Repository) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateTrimsAndDefaults(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	party, err := svc.Create(context.Background(), RoleCustomer, CreateRequest{
		Name:  "  Toko Sinar  ",
		Email: str("sinar@example.com"),
		Phone: str("   "),
	})
	require.NoError(t, err)
	require.Equal(t, "Toko Sinar", party.Name)
	require.True(t, party.IsActive)
	require.Nil(t, party.Phone)
	require.Equal(t, RoleCustomer, party.Role)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, RoleSupplier, CreateRequest{})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, RoleSupplier, CreateRequest{Name: "PT Maju", Email: str("not-an-email")})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, Role("vendor"), CreateRequest{Name: "PT Maju"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateDuplicateTaxID(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()
	_, err := svc.Create(ctx, RoleSupplier, CreateRequest{Name: "A", TaxID: str("01.234")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, RoleSupplier, CreateRequest{Name: "B", TaxID: str("01.234")})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestUpdateAppliesOnlySuppliedFields(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()
	party, err := svc.Create(ctx, RoleCustomer, CreateRequest{Name: "Budi", Email: str("budi@example.com")})
	require.NoError(t, err)

	inactive := false
	updated, err := svc.Update(ctx, RoleCustomer, party.ID, UpdateRequest{IsActive: &inactive})
	require.NoError(t, err)
	require.False(t, updated.IsActive)
	require.Equal(t, "Budi", updated.Name)
	require.Equal(t, "budi@example.com", *updated.Email)

	_, err = svc.Update(ctx, RoleSupplier, party.ID, UpdateRequest{Name: str("X")})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()
	for _, name := range []string{"Ani", "Andi", "Budi"} {
		_, err := svc.Create(ctx, RoleCustomer, CreateRequest{Name: name})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, RoleSupplier, CreateRequest{Name: "Anugrah"})
	require.NoError(t, err)

	page, err := svc.List(ctx, RoleCustomer, ListRequest{Search: "an", Page: 1, PerPage: 1})
	require.NoError(t, err)
	require.Len(t, page.Parties, 1)
	require.Equal(t, 2, page.Pagination.Total)
	require.Equal(t, "Andi", page.Parties[0].Name)
}

func TestDeleteReferencedParty(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	party, err := svc.Create(ctx, RoleCustomer, CreateRequest{Name: "Budi"})
	require.NoError(t, err)
	repo.inUse[party.ID] = true

	require.ErrorIs(t, svc.Delete(ctx, RoleCustomer, party.ID), ErrInUse)
	repo.inUse[party.ID] = false
	require.NoError(t, svc.Delete(ctx, RoleCustomer, party.ID))
	_, err = svc.Get(ctx, RoleCustomer, party.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHandlerRoutes(t *testing.T) {
	repo := newMemoryRepo()
	handler := NewHandler(nil, newTestService(repo), RoleSupplier)
	router := chi.NewRouter()
	router.Route("/api/suppliers", handler.MountRoutes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/suppliers", strings.NewReader(`{"name":"PT Maju","taxId":"01.234"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/suppliers", strings.NewReader(`{"name":"PT Lain","taxId":"01.234"}`)))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/suppliers?isActive=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"PT Maju"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/suppliers/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/suppliers/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
