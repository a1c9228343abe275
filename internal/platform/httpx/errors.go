package httpx

import (
	"errors"
	"net/http"

	"github.com/partnerdesk/partnerdesk/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. Unknown
// errors are reported as opaque 500s so internal details never leak.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrLimitExceeded):
		Problem(w, http.StatusUnprocessableEntity, "Limit Exceeded", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrInconsistent):
		Problem(w, http.StatusInternalServerError, "Inconsistent State", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
