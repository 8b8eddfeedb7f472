// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services, and encode; business rules stay out of this package.
package httptransport

import (
	"encoding/json"
	"net/http"

	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
)

// userHeader carries the acting user's id. First-party authentication happens
// upstream; by the time a request reaches this service the gateway has
// verified the user and stamped the header.
const userHeader = "X-User-ID"

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError translates a domain error into the JSON error envelope. Unknown
// errors collapse to a bare 500 so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := "internal server error"
	if code != dErrors.CodeInternal {
		message = err.Error()
	}
	writeJSON(w, dErrors.ToHTTPStatus(code), errorResponse{
		Error:   string(code),
		Message: message,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid request body")
	}
	return nil
}

// actingUser extracts the authenticated user from the request.
func actingUser(r *http.Request) (id.UserID, error) {
	raw := r.Header.Get(userHeader)
	if raw == "" {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	userID, err := id.ParseUserID(raw)
	if err != nil {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return userID, nil
}
