package amendments

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/partnerdesk/partnerdesk/internal/platform/httpx"
	"github.com/partnerdesk/partnerdesk/internal/shared"
)

// Handler exposes amendment and version-history endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	trail   *shared.ReviewTrail
}

// NewHandler constructs a Handler. trail may be nil when the trail listing
// endpoint is not wanted.
func NewHandler(logger *slog.Logger, service *Service, trail *shared.ReviewTrail) *Handler {
	return &Handler{logger: logger, service: service, trail: trail}
}

// MountRoutes registers amendment routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/amendments", h.submit)
	r.Get("/amendments/{id}", h.getRequest)
	r.Post("/amendments/{id}/review", h.review)
	r.Get("/amendments/{id}/trail", h.getTrail)
	r.Get("/entities/{kind}/{id}/current", h.currentVersion)
	r.Get("/entities/{kind}/{id}/history", h.versionHistory)
}

type submitRequest struct {
	Entity          EntityRef      `json:"entity"`
	Changes         map[string]any `json:"changes"`
	Reason          string         `json:"reason"`
	Impact          string         `json:"impact"`
	ExpectedVersion *int           `json:"expected_version"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		return
	}
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	created, err := h.service.Submit(r.Context(), SubmitInput{
		Entity:          req.Entity,
		Changes:         req.Changes,
		RequesterID:     actorID,
		Reason:          req.Reason,
		Impact:          req.Impact,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.logger.Error("submit amendment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return
	}
	req, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

type reviewRequest struct {
	Decision ReviewDecision `json:"decision"`
	Notes    string         `json:"notes"`
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	reviewed, err := h.service.Review(r.Context(), id, actorID, req.Decision, req.Notes)
	if err != nil {
		h.logger.Error("review amendment",
			slog.String("request", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reviewed)
}

func (h *Handler) getTrail(w http.ResponseWriter, r *http.Request) {
	if h.trail == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return
	}
	entries, err := h.trail.List(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) entityRef(r *http.Request) (EntityRef, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return EntityRef{}, err
	}
	return EntityRef{Kind: chi.URLParam(r, "kind"), ID: id}, nil
}

func (h *Handler) currentVersion(w http.ResponseWriter, r *http.Request) {
	ref, err := h.entityRef(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entity id")
		return
	}
	version, err := h.service.CurrentOf(r.Context(), ref)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, version)
}

func (h *Handler) versionHistory(w http.ResponseWriter, r *http.Request) {
	ref, err := h.entityRef(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entity id")
		return
	}
	versions, err := h.service.HistoryOf(r.Context(), ref)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, versions)
}
