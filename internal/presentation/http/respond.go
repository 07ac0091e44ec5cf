package httppresentation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
)

const (
	headerUserID   = "X-User-Id"
	headerUserRole = "X-User-Role"
)

var errMissingUser = failure.Validation("http: X-User-Id header is required")

type caller struct {
	UserID string
	Role   identity.Role
}

func callerFrom(r *http.Request) caller {
	return caller{
		UserID: r.Header.Get(headerUserID),
		Role:   identity.ParseRole(r.Header.Get(headerUserRole)),
	}
}

// requireUser returns the caller's id or writes a 400.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := callerFrom(r).UserID
	if uid == "" {
		writeDomainError(w, errMissingUser)
		return "", false
	}
	return uid, true
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return failure.Validation("http: invalid body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: failure.Kind(err)})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, failure.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, failure.ErrInvalidState), errors.Is(err, failure.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, failure.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, failure.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, failure.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
