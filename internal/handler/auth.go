package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"stockledger-api/internal/middleware"
	"stockledger-api/internal/model"
	"stockledger-api/internal/service"
	"stockledger-api/pkg/apierror"
	"stockledger-api/pkg/response"
)

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	tokenService *service.TokenService
	catalog      *service.CatalogService
	log          *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(tokenService *service.TokenService, catalog *service.CatalogService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		tokenService: tokenService,
		catalog:      catalog,
		log:          log,
	}
}

// TokenRequest represents the request body for token generation.
type TokenRequest struct {
	LoginKey   string `json:"login_key"`
	NationalID string `json:"national_id"`
}

// TokenResponse represents the response for token generation.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in"`
}

func tokenResponse(token string, s *model.SessionData) TokenResponse {
	return TokenResponse{
		Token:     token,
		ExpiresAt: s.ExpiresAt,
		ExpiresIn: int(time.Until(s.ExpiresAt).Seconds()),
	}
}

// GenerateToken handles POST /api/v1/auth/token
func (h *AuthHandler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if req.LoginKey == "" {
		req.LoginKey = r.Header.Get("X-Login-Key")
	}

	token, session, err := h.tokenService.Login(r.Context(), req.LoginKey, req.NationalID)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}

	response.OK(w, tokenResponse(token, session))
}

// RevokeToken handles POST /api/v1/auth/revoke
func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header required"))
		return
	}

	if err := h.tokenService.RevokeToken(r.Context(), token); err != nil {
		fail(w, r, h.log, err)
		return
	}

	response.OK(w, map[string]string{"status": "revoked"})
}

// RefreshToken handles POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header required"))
		return
	}

	session, err := h.tokenService.RefreshToken(r.Context(), token)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}

	response.OK(w, tokenResponse(token, session))
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := caller(r)
	user, err := h.catalog.GetUser(r.Context(), identity, identity.UserID)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"identity": identity,
		"user":     user,
	})
}
