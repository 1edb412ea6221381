// Package handler is the caller adapter (C9): go-chi routes, a signed-header
// caller-identity middleware, and a uniform APIResponse/APIError envelope.
// Grounded on the teacher's internal/handler/rides.go, which carries the same
// envelope and writeJSON/writeError pattern; adapted here to a struct-based
// domain.Error taxonomy instead of the teacher's flat ErrCode... constants.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ridehail/dispatch/internal/domain"
)

// APIResponse is the uniform response envelope for every endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError is the error half of the envelope.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: status >= 200 && status < 300, Data: data})
}

// kindStatus is the ErrorKind -> HTTP status lookup table, mirroring the
// teacher's ErrCode... constants generalized to the struct-based taxonomy.
var kindStatus = map[domain.ErrorKind]int{
	domain.KindNotFound:          http.StatusNotFound,
	domain.KindUnauthorized:      http.StatusUnauthorized,
	domain.KindForbidden:         http.StatusForbidden,
	domain.KindIllegalTransition: http.StatusConflict,
	domain.KindAlreadyExists:     http.StatusConflict,
	domain.KindAlreadyAssigned:   http.StatusConflict,
	domain.KindAlreadyResponded:  http.StatusConflict,
	domain.KindOfferExpired:      http.StatusGone,
	domain.KindPrecondition:      http.StatusUnprocessableEntity,
	domain.KindOutOfService:      http.StatusUnprocessableEntity,
	domain.KindCrossCity:         http.StatusUnprocessableEntity,
	domain.KindConfigMissing:     http.StatusUnprocessableEntity,
	domain.KindInternal:          http.StatusInternalServerError,
}

// writeEngineError maps any error returned by a C3-C8 component to its
// transport status, preferring the structured domain.Error taxonomy and
// falling back to a generic 500 for anything else (a programmer error, since
// every component is documented to surface only domain.Error).
func writeEngineError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		log.Error().Err(err).Msg("handler: non-domain error reached the adapter")
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	status, ok := kindStatus[de.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if de.Kind == domain.KindInternal {
		log.Error().Err(de.Cause).Msg("handler: internal error")
	}
	writeErrorResponse(w, status, string(de.Kind), de.Error(), de.Details)
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message, Details: details},
	})
}

type callerContextKey struct{}

// Caller is the verified identity extracted from the request by the
// identity middleware: {user_id, role}.
type Caller struct {
	UserID   int64
	TenantID int64
	Role     string
}

// IdentityMiddleware extracts a caller identity from signed headers set by
// an upstream gateway (token issuance/verification itself is out of scope).
// An absent or malformed X-User-Id header produces an Unauthorized response
// immediately; X-Tenant-Id and X-User-Role are not validated, and a missing
// or malformed tenant id reads as 0.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
		if err != nil {
			writeEngineError(w, domain.Unauthorized)
			return
		}
		tenantID, _ := strconv.ParseInt(r.Header.Get("X-Tenant-Id"), 10, 64)
		role := r.Header.Get("X-User-Role")

		ctx := context.WithValue(r.Context(), callerContextKey{}, Caller{
			UserID: userID, TenantID: tenantID, Role: role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerContextKey{}).(Caller)
	return c, ok
}

func pathInt64(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// idempotencyKey reads the caller-supplied X-Idempotency-Key header for a
// mutating request, or mints one so every create_trip attempt still carries
// a stable correlation id through the logs even when the caller omits it.
func idempotencyKey(r *http.Request) string {
	if k := r.Header.Get("X-Idempotency-Key"); k != "" {
		return k
	}
	return uuid.NewString()
}
