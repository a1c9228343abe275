// Package httpx renders API responses. Errors go out as RFC 7807 problem
// documents so clients always see one machine-readable error shape.
package httpx

import (
	"encoding/json"
	"io"
	"net/http"
)

// Change sets and snapshots are small documents; anything near this limit
// is garbage or abuse.
const maxDecodeBytes = 1 << 20

// ProblemDetail is the RFC 7807 error body.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data with the given status. An encoding failure is not
// recoverable here since the status line is already on the wire.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem writes a problem document with the given title and detail.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON parses the request body into target, capped at maxDecodeBytes.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxDecodeBytes)).Decode(target)
}
