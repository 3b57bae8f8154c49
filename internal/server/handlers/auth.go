package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/iudanet/zfswitness/pkg/api"
)

// AuthHandler обрабатывает запросы авторизации администратора
type AuthHandler struct {
	logger            *slog.Logger
	adminUsername     string
	adminPasswordHash string // bcrypt
	jwtConfig         JWTConfig
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, adminUsername, adminPasswordHash string, jwtConfig JWTConfig) *AuthHandler {
	return &AuthHandler{
		logger:            logger,
		adminUsername:     adminUsername,
		adminPasswordHash: adminPasswordHash,
		jwtConfig:         jwtConfig,
	}
}

// Login обрабатывает POST /api/v1/auth/login
// Выдает административный JWT по паролю из конфига
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode login request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Password == "" {
		sendError(h.logger, w, "password is required", http.StatusBadRequest)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.adminPasswordHash), []byte(req.Password)); err != nil {
		h.logger.WarnContext(ctx, "admin login failed", slog.String("remote_addr", r.RemoteAddr))
		sendError(h.logger, w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, expiresIn, err := GenerateAdminToken(h.jwtConfig, h.adminUsername)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate token", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "admin logged in", slog.String("username", h.adminUsername))

	sendJSON(h.logger, w, api.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	}, http.StatusOK)
}
