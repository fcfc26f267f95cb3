package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/cognito-auth/cognito"
	"github.com/upb/cognito-auth/middleware"
	"github.com/upb/cognito-auth/utils"
)

// MeResponse describes the authenticated caller
type MeResponse struct {
	Subject  string         `json:"sub"`
	Username string         `json:"username,omitempty"`
	TokenUse string         `json:"token_use"`
	ClientID string         `json:"client_id,omitempty"`
	Groups   []string       `json:"groups"`
	Scopes   []string       `json:"scopes"`
	Claims   cognito.Claims `json:"claims"`
}

// UserHandler serves information about the authenticated user
type UserHandler struct {
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{logger: logger}
}

// HandleMe handles GET /api/v1/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	groups := claims.Groups()
	if groups == nil {
		groups = []string{}
	}
	scopes := claims.Scopes()
	if scopes == nil {
		scopes = []string{}
	}

	response := MeResponse{
		Subject:  claims.Subject(),
		Username: claims.Username(),
		TokenUse: claims.TokenUse(),
		ClientID: claims.ClientID(),
		Groups:   groups,
		Scopes:   scopes,
		Claims:   claims,
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write user response", zap.Error(err))
	}
}
