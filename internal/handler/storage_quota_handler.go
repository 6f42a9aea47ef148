package handler

import (
	"net/http"

	"go.uber.org/zap"

	"mdshare/internal/service"
)

type StorageQuotaHandler struct {
	quotaService     *service.StorageQuotaService
	reconcileService *service.ReconcileService
	auth             TokenVerifier
	log              *zap.Logger
}

func NewStorageQuotaHandler(quotaService *service.StorageQuotaService, reconcileService *service.ReconcileService, auth TokenVerifier, log *zap.Logger) *StorageQuotaHandler {
	return &StorageQuotaHandler{
		quotaService:     quotaService,
		reconcileService: reconcileService,
		auth:             auth,
		log:              log.Named("quota-handler"),
	}
}

func (h *StorageQuotaHandler) GetQuotaInfo(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	quotaInfo, err := h.quotaService.GetQuotaInfo(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, quotaInfo)
}

// UpdateQuotaLimit changes another owner's limit. Admin only.
func (h *StorageQuotaHandler) UpdateQuotaLimit(w http.ResponseWriter, r *http.Request) {
	adminID, err := h.auth.VerifyAdmin(r)
	if err != nil {
		writeAdminAuthError(w, err)
		return
	}

	var req struct {
		UserID   string `json:"user_id"`
		NewLimit int64  `json:"new_limit"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.quotaService.UpdateQuotaLimit(r.Context(), req.UserID, req.NewLimit); err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	h.log.Info("quota limit changed by admin",
		zap.String("admin", adminID), zap.String("owner", req.UserID), zap.Int64("limit", req.NewLimit))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Reconcile audits an owner's quota against the asset records and, with
// repair set, resets the counter to the recorded total. Admin only.
func (h *StorageQuotaHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.VerifyAdmin(r); err != nil {
		writeAdminAuthError(w, err)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
		Repair bool   `json:"repair"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	audit := h.reconcileService.Audit
	if req.Repair {
		audit = h.reconcileService.Repair
	}
	drift, err := audit(r.Context(), req.UserID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"drift":    drift,
		"in_sync":  drift.InSync(),
		"repaired": req.Repair && !drift.InSync(),
	})
}
