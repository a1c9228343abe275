package authz

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/partnerdesk/partnerdesk/internal/platform/httpx"
	"github.com/partnerdesk/partnerdesk/internal/shared"
)

// Handler exposes the authorization admin and resolution endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	resolver *Resolver
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver) *Handler {
	return &Handler{logger: logger, service: service, resolver: resolver}
}

// MountRoutes registers authz routes. Admin routes are guarded by the authz
// middleware itself; resolve does its own actor check.
func (h *Handler) MountRoutes(r chi.Router, mw Middleware) {
	r.Post("/authz/resolve", h.resolve)

	r.Group(func(r chi.Router) {
		r.Use(mw.Require("authz.manage", "write"))
		r.Post("/authz/modules", h.createModule)
		r.Post("/authz/modules/{id}/deactivate", h.deactivateModule)
		r.Post("/authz/modules/{id}/reactivate", h.reactivateModule)
		r.Post("/authz/modules/{id}/permissions", h.ensurePermission)
		r.Post("/authz/roles", h.createRole)
		r.Put("/authz/roles/{id}/grants", h.setRoleGrants)
		r.Post("/authz/users/{id}/role", h.assignRole)
		r.Put("/authz/users/{id}/overrides/{permissionID}", h.putOverride)
		r.Delete("/authz/users/{id}/overrides/{permissionID}", h.deleteOverride)
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.Require("authz.manage", "read"))
		r.Get("/authz/modules", h.listModules)
		r.Get("/authz/modules/{id}/permissions", h.listPermissions)
		r.Get("/authz/roles/{id}", h.getRole)
		r.Get("/authz/users/{id}/permissions", h.effectivePermissions)
	})
}

type resolveRequest struct {
	UserID        int64  `json:"user_id"`
	PermissionKey string `json:"permission_key"`
	Action        string `json:"action"`
}

// resolve answers "may user U perform A on P". An actor may always ask
// about itself; asking about anyone else requires the admin read
// permission, so the endpoint cannot be used to enumerate grants.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "actor required")
		return
	}
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if req.UserID != actorID {
		gate, err := h.resolver.Resolve(r.Context(), actorID, "authz.manage", "read")
		if err != nil || !gate.Allowed {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "cannot resolve for another user")
			return
		}
	}
	decision, err := h.resolver.Resolve(r.Context(), req.UserID, req.PermissionKey, req.Action)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

type createModuleRequest struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

func (h *Handler) createModule(w http.ResponseWriter, r *http.Request) {
	var req createModuleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	mod, err := h.service.CreateModule(r.Context(), req.Key, req.Name)
	if err != nil {
		h.logger.Error("create module", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mod)
}

func (h *Handler) listModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.service.ListModules(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, modules)
}

func (h *Handler) deactivateModule(w http.ResponseWriter, r *http.Request) {
	h.toggleModule(w, r, false)
}

func (h *Handler) reactivateModule(w http.ResponseWriter, r *http.Request) {
	h.toggleModule(w, r, true)
}

func (h *Handler) toggleModule(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid module id")
		return
	}
	if active {
		err = h.service.ReactivateModule(r.Context(), id)
	} else {
		err = h.service.DeactivateModule(r.Context(), id)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ensurePermissionRequest struct {
	Key         string `json:"key"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

func (h *Handler) ensurePermission(w http.ResponseWriter, r *http.Request) {
	moduleID, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid module id")
		return
	}
	var req ensurePermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	perm, err := h.service.EnsurePermission(r.Context(), moduleID, req.Key, req.Action, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	moduleID, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid module id")
		return
	}
	perms, err := h.service.ListPermissions(r.Context(), moduleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) setRoleGrants(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var grants []GrantInput
	if err := httpx.DecodeJSON(r, &grants); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.service.SetRoleGrants(r.Context(), roleID, grants); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.service.AssignRole(r.Context(), userID, req.RoleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type putOverrideRequest struct {
	Granted   bool       `json:"granted"`
	ExpiresAt *time.Time `json:"expires_at"`
	Reason    string     `json:"reason"`
}

func (h *Handler) putOverride(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	permissionID, err := pathID(r, "permissionID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid permission id")
		return
	}
	var req putOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	err = h.service.PutOverride(r.Context(), PutOverrideInput{
		UserID:       userID,
		PermissionID: permissionID,
		Granted:      req.Granted,
		ExpiresAt:    req.ExpiresAt,
		Reason:       req.Reason,
		GrantedBy:    actorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteOverride(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	permissionID, err := pathID(r, "permissionID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid permission id")
		return
	}
	if err := h.service.DeleteOverride(r.Context(), userID, permissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
