package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/partnerdesk/partnerdesk/internal/amendments"
	"github.com/partnerdesk/partnerdesk/internal/authz"
	"github.com/partnerdesk/partnerdesk/internal/partners"
	"github.com/partnerdesk/partnerdesk/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AuthzHandler      *authz.Handler
	AuthzMiddleware   authz.Middleware
	UsersHandler      *users.Handler
	AmendmentsHandler *amendments.Handler
	PartnersHandler   *partners.Handler
}

// NewRouter constructs the chi.Router with PartnerDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mw := params.AuthzMiddleware

	if params.AuthzHandler != nil {
		params.AuthzHandler.MountRoutes(r, mw)
	}
	if params.UsersHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(mw.Require("users.manage", "write"))
			params.UsersHandler.MountRoutes(r)
		})
	}
	if params.AmendmentsHandler != nil {
		// The amendment service enforces the reviewer permission itself,
		// so the review route only needs an authenticated actor.
		params.AmendmentsHandler.MountRoutes(r)
	}
	if params.PartnersHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(mw.Require("partners.manage", "write"))
			params.PartnersHandler.MountRoutes(r)
		})
	}

	return r
}
