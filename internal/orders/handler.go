package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maelza/maelza-erp/internal/platform/httpx"
	"github.com/maelza/maelza-erp/internal/shared"
)

// Handler exposes one document kind over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	kind    Kind
}

// NewHandler constructs a handler for documents of kind k.
func NewHandler(logger *slog.Logger, service *Service, k Kind) *Handler {
	return &Handler{logger: logger, service: service, kind: k}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Patch("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
}

// dateValue accepts either a calendar date or an RFC3339 timestamp.
type dateValue struct {
	time.Time
}

func (d *dateValue) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return fmt.Errorf("invalid date %q", raw)
	}
	d.Time = t
	return nil
}

type itemRequest struct {
	ProductID uuid.UUID        `json:"productId"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
}

type documentRequest struct {
	PartyID    *uuid.UUID    `json:"partyId,omitempty"`
	CustomerID *uuid.UUID    `json:"customerId,omitempty"`
	SupplierID *uuid.UUID    `json:"supplierId,omitempty"`
	Date       *dateValue    `json:"date,omitempty"`
	Notes      *string       `json:"notes,omitempty"`
	Status     *string       `json:"status,omitempty"`
	Items      []itemRequest `json:"items,omitempty"`
}

func (req documentRequest) party() *uuid.UUID {
	switch {
	case req.PartyID != nil:
		return req.PartyID
	case req.CustomerID != nil:
		return req.CustomerID
	}
	return req.SupplierID
}

func (req documentRequest) items() []ItemInput {
	if len(req.Items) == 0 {
		return nil
	}
	out := make([]ItemInput, len(req.Items))
	for i, item := range req.Items {
		out[i] = ItemInput{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice}
	}
	return out
}

type itemResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unitPrice"`
	Total     string    `json:"total"`
}

type documentResponse struct {
	ID        uuid.UUID      `json:"id"`
	Kind      Kind           `json:"kind"`
	Number    string         `json:"number"`
	PartyID   uuid.UUID      `json:"partyId"`
	UserID    *uuid.UUID     `json:"userId,omitempty"`
	Date      time.Time      `json:"date"`
	Subtotal  string         `json:"subtotal"`
	Tax       string         `json:"tax"`
	Total     string         `json:"total"`
	Status    Status         `json:"status"`
	Notes     string         `json:"notes,omitempty"`
	Items     []itemResponse `json:"items"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func toResponse(doc Document) documentResponse {
	resp := documentResponse{
		ID:        doc.ID,
		Kind:      doc.Kind,
		Number:    doc.Number,
		PartyID:   doc.PartyID,
		Date:      doc.Date,
		Subtotal:  doc.Subtotal.StringFixed(moneyPlaces),
		Tax:       doc.Tax.StringFixed(moneyPlaces),
		Total:     doc.Total.StringFixed(moneyPlaces),
		Status:    doc.Status,
		Notes:     doc.Notes,
		Items:     make([]itemResponse, 0, len(doc.Items)),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if doc.UserID != uuid.Nil {
		user := doc.UserID
		resp.UserID = &user
	}
	for _, item := range doc.Items {
		resp.Items = append(resp.Items, itemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(moneyPlaces),
			Total:     item.Total.StringFixed(moneyPlaces),
		})
	}
	return resp
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search:  q.Get("search"),
		Page:    atoiDefault(q.Get("page"), 1),
		PerPage: atoiDefault(q.Get("limit"), shared.DefaultPerPage),
	}
	if raw := q.Get("status"); raw != "" {
		status, err := h.kind.ParseStatus(raw)
		if err != nil {
			h.writeError(w, err)
			return
		}
		filter.Status = status
	}
	for _, key := range []string{"partyId", "customerId", "supplierId"} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid %s", httpx.ErrBadRequest, key))
			return
		}
		filter.PartyID = id
	}
	var err error
	if filter.From, err = parseDay(q.Get("startDate")); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid startDate", httpx.ErrBadRequest))
		return
	}
	if filter.To, err = parseDay(q.Get("endDate")); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid endDate", httpx.ErrBadRequest))
		return
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}

	result, err := h.service.List(r.Context(), h.kind, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	docs := make([]documentResponse, 0, len(result.Documents))
	for _, doc := range result.Documents {
		docs = append(docs, toResponse(doc))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": docs, "pagination": result.Pagination})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	input := CreateInput{
		UserID:         shared.ActorFromContext(r.Context()),
		Items:          req.items(),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(shared.IdempotencyHeader)),
	}
	if party := req.party(); party != nil {
		input.PartyID = *party
	}
	if req.Date != nil {
		input.Date = req.Date.Time
	}
	if req.Notes != nil {
		input.Notes = *req.Notes
	}
	if req.Status != nil {
		input.Status = *req.Status
	}
	doc, err := h.service.Create(r.Context(), h.kind, input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(doc))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), h.kind, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(doc))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req documentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	patch := Patch{
		PartyID: req.party(),
		Notes:   req.Notes,
		Status:  req.Status,
		Items:   req.items(),
	}
	if req.Date != nil && !req.Date.IsZero() {
		date := req.Date.Time
		patch.Date = &date
	}
	doc, err := h.service.Update(r.Context(), h.kind, id, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(doc))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), h.kind, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid %s id", httpx.ErrBadRequest, h.kind))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var shortage *InsufficientStockError
	switch {
	case errors.As(err, &shortage):
		httpx.ProblemWith(w, http.StatusConflict, "Insufficient Stock", err.Error(), map[string]any{
			"productId": shortage.ProductID,
			"available": shortage.Available,
			"required":  shortage.Required,
		})
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnknownProduct):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Product", err.Error())
	case errors.Is(err, ErrReference):
		httpx.Problem(w, http.StatusNotFound, "Reference Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("document request failed", slog.String("kind", string(h.kind)), slog.Any("error", err))
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
