package partners

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/partnerdesk/partnerdesk/internal/platform/httpx"
)

// Handler exposes business partner endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers partner routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/partners", h.create)
	r.Get("/partners/{id}", h.get)
}

type createResponse struct {
	ID      uuid.UUID `json:"id"`
	Version int       `json:"version"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var bp BusinessPartner
	if err := httpx.DecodeJSON(r, &bp); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	id, version, err := h.service.Create(r.Context(), bp)
	if err != nil {
		h.logger.Error("create partner", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createResponse{ID: id, Version: version.Version})
}

type getResponse struct {
	ID      uuid.UUID       `json:"id"`
	Version int             `json:"version"`
	Partner BusinessPartner `json:"partner"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid partner id")
		return
	}
	bp, version, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, getResponse{ID: id, Version: version, Partner: bp})
}
