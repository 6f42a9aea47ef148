package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mdshare/internal/domain"
	"mdshare/internal/service"
)

type UploadHandler struct {
	assetService *service.AssetService
	auth         TokenVerifier
	log          *zap.Logger
}

func NewUploadHandler(assetService *service.AssetService, auth TokenVerifier, log *zap.Logger) *UploadHandler {
	return &UploadHandler{
		assetService: assetService,
		auth:         auth,
		log:          log.Named("upload-handler"),
	}
}

// RecordUpload stores metadata for bytes the client already uploaded.
func (h *UploadHandler) RecordUpload(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req domain.RecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.assetService.Record(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *UploadHandler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rawID := r.URL.Query().Get("id")
	if rawID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	// A malformed id cannot name an existing asset.
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err := h.assetService.Delete(r.Context(), id, userID); err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type assetWithURLs struct {
	domain.Asset
	URLs domain.DerivedURLs `json:"urls"`
}

func (h *UploadHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	assets, err := h.assetService.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	files := make([]assetWithURLs, 0, len(assets))
	for _, a := range assets {
		files = append(files, assetWithURLs{Asset: a, URLs: h.assetService.URLs(a.StorageKey)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

func (h *UploadHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	asset, err := h.assetService.Get(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, assetWithURLs{Asset: *asset, URLs: h.assetService.URLs(asset.StorageKey)})
}
