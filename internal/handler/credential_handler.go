package handler

import (
	"net/http"

	"go.uber.org/zap"

	"mdshare/internal/domain"
	"mdshare/internal/service"
)

type CredentialHandler struct {
	credentialService *service.CredentialService
	auth              TokenVerifier
	log               *zap.Logger
}

func NewCredentialHandler(credentialService *service.CredentialService, auth TokenVerifier, log *zap.Logger) *CredentialHandler {
	return &CredentialHandler{
		credentialService: credentialService,
		auth:              auth,
		log:               log.Named("credential-handler"),
	}
}

// GetToken issues an upload credential for the caller.
func (h *CredentialHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.VerifyToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cred, err := h.credentialService.Issue(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, domain.NewCredentialResponse(cred))
}
