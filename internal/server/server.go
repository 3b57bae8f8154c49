package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/zfswitness/internal/config"
	"github.com/iudanet/zfswitness/internal/server/handlers"
	"github.com/iudanet/zfswitness/internal/server/middleware"
	"github.com/iudanet/zfswitness/internal/server/storage"
)

// Storage объединяет все хранилища, которые нужны HTTP слою
type Storage interface {
	storage.NodeStorage
	storage.SnapshotStorage
	storage.GroupStorage
	storage.SyncStateStorage
	handlers.Pinger
}

// Server wraps the HTTP server and its routing
type Server struct {
	logger *slog.Logger
	http   *http.Server
}

// New builds the router and the HTTP server around it
func New(
	cfg *config.Config,
	logger *slog.Logger,
	store Storage,
	coordinator handlers.SyncCoordinator,
	conflicts handlers.ConflictResolver,
) *Server {
	router := NewRouter(cfg, logger, store, coordinator, conflicts)

	return &Server{
		logger: logger,
		http: &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Run запускает сервер и блокируется до отмены контекста,
// затем делает graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down http server")
	return s.http.Shutdown(shutdownCtx)
}

// NewRouter собирает все маршруты и middleware.
// Порядок цепочки: recovery -> rate limit -> logging -> auth (per-route).
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	store Storage,
	coordinator handlers.SyncCoordinator,
	conflicts handlers.ConflictResolver,
) http.Handler {
	jwtConfig := handlers.JWTConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		TokenTTL: cfg.TokenTTL(),
	}

	authHandler := handlers.NewAuthHandler(logger, cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash, jwtConfig)
	nodeHandler := handlers.NewNodeHandler(logger, store, store)
	snapshotHandler := handlers.NewSnapshotHandler(logger, store)
	groupHandler := handlers.NewGroupHandler(logger, store, store)
	syncHandler := handlers.NewSyncHandler(logger, coordinator)
	conflictHandler := handlers.NewConflictHandler(logger, conflicts)
	healthHandler := handlers.NewHealthHandler(logger, store)

	nodeAuth := middleware.NodeAuthMiddleware(logger, store)
	adminAuth := middleware.AdminAuthMiddleware(logger, jwtConfig)
	nodeOrAdminAuth := middleware.NodeOrAdminAuthMiddleware(logger, store, jwtConfig)

	mux := http.NewServeMux()

	// Health check без авторизации
	mux.HandleFunc("GET /health", healthHandler.Health)

	// Авторизация администратора
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	// Управление нодами — только администратор
	mux.Handle("POST /api/v1/nodes", adminAuth(http.HandlerFunc(nodeHandler.Register)))
	mux.Handle("GET /api/v1/nodes", adminAuth(http.HandlerFunc(nodeHandler.List)))
	mux.Handle("GET /api/v1/nodes/{id}", adminAuth(http.HandlerFunc(nodeHandler.Get)))
	mux.Handle("DELETE /api/v1/nodes/{id}", adminAuth(http.HandlerFunc(nodeHandler.Delete)))

	// Инвентарь снапшотов: отчет шлет нода, смотреть может и оператор
	mux.Handle("POST /api/v1/snapshots/report", nodeAuth(http.HandlerFunc(snapshotHandler.Report)))
	mux.Handle("GET /api/v1/snapshots", nodeOrAdminAuth(http.HandlerFunc(snapshotHandler.List)))

	// Управление группами — только администратор
	mux.Handle("POST /api/v1/groups", adminAuth(http.HandlerFunc(groupHandler.Create)))
	mux.Handle("GET /api/v1/groups", adminAuth(http.HandlerFunc(groupHandler.List)))
	mux.Handle("GET /api/v1/groups/{id}", adminAuth(http.HandlerFunc(groupHandler.Get)))
	mux.Handle("PATCH /api/v1/groups/{id}", adminAuth(http.HandlerFunc(groupHandler.Update)))
	mux.Handle("DELETE /api/v1/groups/{id}", adminAuth(http.HandlerFunc(groupHandler.Delete)))

	// Движок согласования
	mux.Handle("GET /api/v1/sync/instructions", nodeOrAdminAuth(http.HandlerFunc(syncHandler.Instructions)))
	mux.Handle("GET /api/v1/sync/mismatches", adminAuth(http.HandlerFunc(syncHandler.Mismatches)))
	mux.Handle("GET /api/v1/sync/actions", adminAuth(http.HandlerFunc(syncHandler.Actions)))
	mux.Handle("GET /api/v1/sync/status", adminAuth(http.HandlerFunc(syncHandler.Status)))
	mux.Handle("POST /api/v1/sync/state", nodeOrAdminAuth(http.HandlerFunc(syncHandler.UpdateState)))

	// Конфликты — только администратор
	mux.Handle("GET /api/v1/conflicts", adminAuth(http.HandlerFunc(conflictHandler.List)))
	mux.Handle("POST /api/v1/conflicts/resolve", adminAuth(http.HandlerFunc(conflictHandler.Resolve)))

	var handler http.Handler = mux
	handler = middleware.LoggingMiddleware(logger, "/health")(handler)
	handler = middleware.RateLimitMiddleware(cfg.Server.RateLimit, cfg.RateWindow(), logger)(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)
	return handler
}
