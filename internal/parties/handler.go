package parties

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maelza/maelza-erp/internal/platform/httpx"
	"github.com/maelza/maelza-erp/internal/shared"
)

// Handler serves one party directory.
type Handler struct {
	logger  *slog.Logger
	service *Service
	role    Role
}

func NewHandler(logger *slog.Logger, service *Service, role Role) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, role: role}
}

// MountRoutes registers the directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Patch("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
}

type pageResponse struct {
	Data       []Party           `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListRequest{Search: q.Get("search"), Page: atoi(q.Get("page"), 1), PerPage: atoi(q.Get("limit"), shared.DefaultPerPage)}
	if raw := q.Get("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: isActive must be true or false", httpx.ErrBadRequest))
			return
		}
		req.IsActive = &active
	}
	page, err := h.service.List(r.Context(), h.role, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if page.Parties == nil {
		page.Parties = []Party{}
	}
	httpx.JSON(w, http.StatusOK, pageResponse{Data: page.Parties, Pagination: page.Pagination})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	party, err := h.service.Create(r.Context(), h.role, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, party)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	party, err := h.service.Get(r.Context(), h.role, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, party)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	party, err := h.service.Update(r.Context(), h.role, id, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, party)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), h.role, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid %s id", httpx.ErrBadRequest, h.role))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s not found", httpx.ErrNotFound, h.role))
	case errors.Is(err, ErrAlreadyExists):
		httpx.RespondError(w, fmt.Errorf("%w: tax id already registered", httpx.ErrConflict))
	case errors.Is(err, ErrInUse):
		httpx.RespondError(w, fmt.Errorf("%w: %s is referenced by documents", httpx.ErrConflict, h.role))
	case errors.Is(err, ErrValidation):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
	default:
		h.logger.Error("party request failed", slog.String("role", string(h.role)), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func atoi(value string, fallback int) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
