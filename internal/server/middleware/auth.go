package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/iudanet/zfswitness/internal/server/handlers"
	"github.com/iudanet/zfswitness/internal/server/storage"
)

// NodeAuthMiddleware создает middleware для аутентификации нод по API ключу.
// Ключ приходит в заголовке X-API-Key, в БД сверяется его sha256 хеш.
func NodeAuthMiddleware(logger *slog.Logger, nodes storage.NodeStorage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, ok := authenticateNode(logger, nodes, r)
			if !ok {
				http.Error(w, "Unauthorized: invalid api key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminAuthMiddleware создает middleware для проверки админского JWT токена
func AdminAuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, ok := authenticateAdmin(logger, jwtConfig, r)
			if !ok {
				http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NodeOrAdminAuthMiddleware пропускает и ноду, и администратора.
// Для эндпоинтов, которые дергает агент, но которые полезны и оператору.
func NodeOrAdminAuthMiddleware(logger *slog.Logger, nodes storage.NodeStorage, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ctx, ok := authenticateNode(logger, nodes, r); ok {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if ctx, ok := authenticateAdmin(logger, jwtConfig, r); ok {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

func authenticateNode(logger *slog.Logger, nodes storage.NodeStorage, r *http.Request) (context.Context, bool) {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		return nil, false
	}

	node, err := nodes.GetNodeByAPIKeyHash(r.Context(), handlers.HashAPIKey(apiKey))
	if err != nil {
		logger.Warn("node authentication failed", "remote_addr", r.RemoteAddr)
		return nil, false
	}

	// last_seen обновляется на каждом аутентифицированном запросе,
	// ошибка здесь не повод отклонять запрос
	if err := nodes.UpdateLastSeen(r.Context(), node.ID, time.Now().UTC()); err != nil {
		logger.Warn("failed to update last seen", "node_id", node.ID, "error", err)
	}

	logger.Debug("node authenticated", "node_id", node.ID, "hostname", node.Hostname)
	return handlers.WithNodeID(r.Context(), node.ID), true
}

func authenticateAdmin(logger *slog.Logger, jwtConfig handlers.JWTConfig, r *http.Request) (context.Context, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, false
	}

	// Ожидаем формат: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		logger.Warn("invalid Authorization header format")
		return nil, false
	}

	claims, err := handlers.ValidateAdminToken(jwtConfig, parts[1])
	if err != nil {
		logger.Warn("invalid access token", "error", err)
		return nil, false
	}

	logger.Debug("admin authenticated", "username", claims.Username)
	return handlers.WithAdminUser(r.Context(), claims.Username), true
}
