// Package shared holds the JSON envelope helpers every handler uses, so
// error translation and response encoding stay uniform across features.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "istsi/pkg/domain-errors"
)

// ErrorResponse is the uniform error envelope. Only the code and message
// travel; downstream internals never leak to clients.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{Error: code.String()}
	var de *dErrors.Error
	if errors.As(err, &de) {
		resp.Message = de.Message
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), resp)
}

// Decode parses a JSON request body into dst, returning a coded error the
// caller can pass straight to WriteError.
func Decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}
