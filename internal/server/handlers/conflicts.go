package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/zfswitness/internal/reconcile"
	"github.com/iudanet/zfswitness/internal/server/storage"
	"github.com/iudanet/zfswitness/pkg/api"
)

// ConflictResolver определяет интерфейс сервиса конфликтов для HTTP слоя
type ConflictResolver interface {
	DetectConflicts(ctx context.Context, groupID, dataset string) ([]api.Conflict, error)
	DetectAllConflicts(ctx context.Context, groupID string) ([]api.Conflict, error)
	ResolveConflict(conflict api.Conflict, strategy reconcile.Strategy) (*api.Resolution, error)
	MarkResolved(ctx context.Context, resolution *api.Resolution) error
}

// ConflictHandler обрабатывает запросы детекции и разрешения конфликтов
type ConflictHandler struct {
	logger    *slog.Logger
	conflicts ConflictResolver
}

// NewConflictHandler creates a new conflict handler
func NewConflictHandler(logger *slog.Logger, conflicts ConflictResolver) *ConflictHandler {
	return &ConflictHandler{
		logger:    logger,
		conflicts: conflicts,
	}
}

// List обрабатывает GET /api/v1/conflicts?group_id=[&dataset=]
func (h *ConflictHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID := r.URL.Query().Get("group_id")
	if groupID == "" {
		sendError(h.logger, w, "group_id is required", http.StatusBadRequest)
		return
	}
	dataset := r.URL.Query().Get("dataset")

	var (
		conflicts []api.Conflict
		err       error
	)
	if dataset != "" {
		conflicts, err = h.conflicts.DetectConflicts(ctx, groupID, dataset)
	} else {
		conflicts, err = h.conflicts.DetectAllConflicts(ctx, groupID)
	}
	if err != nil {
		if errors.Is(err, storage.ErrGroupNotFound) {
			sendError(h.logger, w, "group not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "conflict detection failed", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, api.ConflictListResponse{
		GroupID:   groupID,
		Conflicts: conflicts,
	}, http.StatusOK)
}

// Resolve обрабатывает POST /api/v1/conflicts/resolve
// Применяет стратегию и обновляет состояния затронутых нод
func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode resolve request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Conflict.GroupID == "" || req.Conflict.SnapshotName == "" {
		sendError(h.logger, w, "conflict group_id and snapshot_name are required", http.StatusBadRequest)
		return
	}

	resolution, err := h.conflicts.ResolveConflict(req.Conflict, reconcile.Strategy(req.Strategy))
	if err != nil {
		if errors.Is(err, reconcile.ErrUnknownStrategy) {
			sendError(h.logger, w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "conflict resolution failed", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	if resolution.Status == reconcile.ResolutionResolved || resolution.Status == reconcile.ResolutionIgnored {
		if err := h.conflicts.MarkResolved(ctx, resolution); err != nil {
			h.logger.ErrorContext(ctx, "failed to record resolution", slog.Any("error", err))
			sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
			return
		}
	}

	h.logger.InfoContext(ctx, "conflict resolution applied",
		slog.String("group_id", req.Conflict.GroupID),
		slog.String("snapshot", req.Conflict.SnapshotName),
		slog.String("strategy", req.Strategy),
		slog.String("status", resolution.Status))

	sendJSON(h.logger, w, resolution, http.StatusOK)
}
