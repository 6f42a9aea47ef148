package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"mdshare/internal/domain"
	"mdshare/internal/service"
)

type AdminHandler struct {
	sweeper      *service.SweeperService
	auth         TokenVerifier
	defaultGrace time.Duration
	log          *zap.Logger
}

func NewAdminHandler(sweeper *service.SweeperService, auth TokenVerifier, defaultGrace time.Duration, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		sweeper:      sweeper,
		auth:         auth,
		defaultGrace: defaultGrace,
		log:          log.Named("admin-handler"),
	}
}

// Sweep deletes unreferenced remote objects for one owner, or all owners
// when user_id is empty.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.VerifyAdmin(r); err != nil {
		writeAdminAuthError(w, err)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
		Grace  string `json:"grace"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	grace := h.defaultGrace
	if req.Grace != "" {
		d, err := time.ParseDuration(req.Grace)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "invalid grace duration")
			return
		}
		grace = d
	}

	report, err := h.sweeper.Sweep(r.Context(), req.UserID, grace)
	if domain.ValidationError.Has(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.log.Error("sweep failed", zap.String("owner", req.UserID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
