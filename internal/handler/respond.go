package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"mdshare/internal/auth"
	"mdshare/internal/domain"
)

// TokenVerifier resolves the caller's identity from the request.
type TokenVerifier interface {
	VerifyToken(r *http.Request) (string, error)
	VerifyAdmin(r *http.Request) (string, error)
}

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps the domain error classes onto HTTP statuses.
// Config and unknown errors are logged and answered generically.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case domain.ValidationError.Has(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.QuotaExceededError.Has(err):
		writeError(w, http.StatusForbidden, err.Error())
	case domain.NotFoundError.Has(err):
		writeError(w, http.StatusNotFound, "not found")
	case domain.ConfigError.Has(err):
		log.Error("server misconfigured", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server configuration error")
	case domain.TransportError.Has(err):
		log.Warn("storage unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
	default:
		log.Error("unexpected error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

// writeAdminAuthError answers 401 to anonymous callers and 403 to
// authenticated callers without the admin role.
func writeAdminAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrNotAdmin) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeError(w, http.StatusUnauthorized, "unauthorized")
}
