package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maelza/maelza-erp/internal/platform/httpx"
	"github.com/maelza/maelza-erp/internal/shared"
)

// Handler wires HTTP endpoints for the product catalog.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/low-stock", h.handleLowStock)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Patch("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	r.Get("/{id}/movements", h.handleStockCard)
}

type productResponse struct {
	ID         uuid.UUID `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Unit       string    `json:"unit"`
	CostPrice  string    `json:"costPrice"`
	SalePrice  string    `json:"salePrice"`
	Stock      int       `json:"stock"`
	MinStock   int       `json:"minStock"`
	IsActive   bool      `json:"isActive"`
	IsLowStock bool      `json:"isLowStock"`
}

type movementResponse struct {
	ID        uuid.UUID    `json:"id"`
	Type      MovementType `json:"type"`
	Quantity  int          `json:"quantity"`
	Balance   int          `json:"balance"`
	RefKind   string       `json:"refKind,omitempty"`
	RefID     *uuid.UUID   `json:"refId,omitempty"`
	RefNumber string       `json:"refNumber,omitempty"`
	Note      string       `json:"note,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

type productPageResponse struct {
	Products   []productResponse `json:"products"`
	Pagination shared.Pagination `json:"pagination"`
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:         p.ID,
		Code:       p.Code,
		Name:       p.Name,
		Unit:       p.Unit,
		CostPrice:  p.CostPrice.StringFixed(2),
		SalePrice:  p.SalePrice.StringFixed(2),
		Stock:      p.Stock,
		MinStock:   p.MinStock,
		IsActive:   p.IsActive,
		IsLowStock: p.IsLowStock(),
	}
}

func toPageResponse(page ProductPage) productPageResponse {
	out := productPageResponse{Products: make([]productResponse, 0, len(page.Products)), Pagination: page.Pagination}
	for _, p := range page.Products {
		out.Products = append(out.Products, toProductResponse(p))
	}
	return out
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ProductFilter{
		Search:     q.Get("search"),
		ActiveOnly: q.Get("active") == "true",
		LowStock:   q.Get("lowStock") == "true",
		Page:       atoiDefault(q.Get("page"), 1),
		PerPage:    atoiDefault(q.Get("limit"), shared.DefaultPerPage),
	}
	page, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPageResponse(page))
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.LowStock(r.Context(), atoiDefault(q.Get("page"), 1), atoiDefault(q.Get("limit"), shared.DefaultPerPage))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPageResponse(page))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid product id", httpx.ErrBadRequest))
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateProductInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	product, err := h.service.CreateProduct(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid product id", httpx.ErrBadRequest))
		return
	}
	var in UpdateProductInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid product id", httpx.ErrBadRequest))
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid product id", httpx.ErrBadRequest))
		return
	}
	q := r.URL.Query()
	filter := StockCardFilter{ProductID: id, Limit: atoiDefault(q.Get("limit"), 200)}
	if filter.From, err = parseDay(q.Get("from")); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid from date", httpx.ErrBadRequest))
		return
	}
	if filter.To, err = parseDay(q.Get("to")); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid to date", httpx.ErrBadRequest))
		return
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}
	entries, err := h.service.GetStockCard(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]movementResponse, 0, len(entries))
	for _, m := range entries {
		resp := movementResponse{
			ID:        m.ID,
			Type:      m.Type,
			Quantity:  m.Quantity,
			Balance:   m.Balance,
			RefKind:   m.RefKind,
			RefNumber: m.RefNumber,
			Note:      m.Note,
			CreatedAt: m.CreatedAt,
		}
		if m.RefID != uuid.Nil {
			ref := m.RefID
			resp.RefID = &ref
		}
		out = append(out, resp)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"productId": id, "movements": out})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error()))
	case errors.Is(err, ErrProductRequired), errors.Is(err, ErrInvalidProduct):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
	case errors.Is(err, ErrProductExists), errors.Is(err, ErrProductInUse):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err.Error()))
	default:
		h.logger.Error("inventory request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func atoiDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func parseDay(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}
