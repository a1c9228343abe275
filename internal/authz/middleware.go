package authz

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/partnerdesk/partnerdesk/internal/shared"
)

// Middleware wires authorization checks for HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// Require ensures the current actor is allowed (key, action) before the
// wrapped handler runs. Denials and unknown actors both answer 403 so the
// response does not reveal whether the permission exists.
func (m Middleware) Require(key, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			decision, err := m.Resolver.Resolve(r.Context(), actorID, key, action)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
				if m.Logger != nil {
					m.Logger.Error("authz require", slog.String("key", key), slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !decision.Allowed {
				if m.Logger != nil {
					m.Logger.Info("authz deny",
						slog.Int64("user", actorID),
						slog.String("key", key),
						slog.String("action", action),
						slog.String("source", string(decision.Source)))
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
