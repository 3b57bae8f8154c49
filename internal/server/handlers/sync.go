package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/internal/reconcile"
	"github.com/iudanet/zfswitness/internal/server/storage"
	"github.com/iudanet/zfswitness/pkg/api"
)

// SyncCoordinator определяет интерфейс движка согласования для HTTP слоя
type SyncCoordinator interface {
	DetectMismatches(ctx context.Context, groupID string) ([]api.Mismatch, error)
	BuildActions(ctx context.Context, groupID, nodeID string) ([]api.ReplicationAction, error)
	GroupInstructions(ctx context.Context, groupID string, includeDiagnostics bool) ([]api.DatasetSyncInstruction, []string, error)
	InstructionsForNode(ctx context.Context, nodeID string, includeDiagnostics bool) (*api.InstructionsResponse, error)
	UpdateSyncState(ctx context.Context, req api.UpdateSyncStateRequest) (*models.SyncState, error)
	StatusSummary(ctx context.Context, groupID string) (*api.SyncStatusSummary, error)
}

// SyncHandler обрабатывает запросы движка согласования
type SyncHandler struct {
	logger      *slog.Logger
	coordinator SyncCoordinator
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, coordinator SyncCoordinator) *SyncHandler {
	return &SyncHandler{
		logger:      logger,
		coordinator: coordinator,
	}
}

// Instructions обрабатывает GET /api/v1/sync/instructions?node_id=&group_id=&diagnostics=
// Нода без node_id получает свои инструкции; администратор обязан указать
// node_id или group_id. Оба параметра вместе — оценка группы с фильтром
// по целевой ноде.
func (h *SyncHandler) Instructions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	withDiagnostics := q.Get("diagnostics") == "true"

	nodeID := q.Get("node_id")
	if nodeID == "" {
		if id, ok := GetNodeID(ctx); ok {
			nodeID = id
		}
	}

	if groupID := q.Get("group_id"); groupID != "" {
		instructions, diagnostics, err := h.coordinator.GroupInstructions(ctx, groupID, withDiagnostics)
		if err != nil {
			h.sendCoordinatorError(ctx, w, err)
			return
		}
		if nodeID != "" {
			filtered := make([]api.DatasetSyncInstruction, 0, len(instructions))
			for _, instr := range instructions {
				if instr.TargetNodeID == nodeID {
					filtered = append(filtered, instr)
				}
			}
			instructions = filtered
		}
		sendJSON(h.logger, w, api.InstructionsResponse{
			NodeID:      nodeID,
			Datasets:    instructions,
			Diagnostics: diagnostics,
		}, http.StatusOK)
		return
	}

	if nodeID == "" {
		sendError(h.logger, w, "node_id or group_id is required", http.StatusBadRequest)
		return
	}

	resp, err := h.coordinator.InstructionsForNode(ctx, nodeID, withDiagnostics)
	if err != nil {
		h.sendCoordinatorError(ctx, w, err)
		return
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Mismatches обрабатывает GET /api/v1/sync/mismatches?group_id=
func (h *SyncHandler) Mismatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID := r.URL.Query().Get("group_id")
	if groupID == "" {
		sendError(h.logger, w, "group_id is required", http.StatusBadRequest)
		return
	}

	mismatches, err := h.coordinator.DetectMismatches(ctx, groupID)
	if err != nil {
		h.sendCoordinatorError(ctx, w, err)
		return
	}
	sendJSON(h.logger, w, api.MismatchListResponse{
		GroupID:    groupID,
		Mismatches: mismatches,
	}, http.StatusOK)
}

// Actions обрабатывает GET /api/v1/sync/actions?group_id=[&node_id=]
// node_id сужает план до действий, адресованных одной целевой ноде
func (h *SyncHandler) Actions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID := r.URL.Query().Get("group_id")
	if groupID == "" {
		sendError(h.logger, w, "group_id is required", http.StatusBadRequest)
		return
	}

	actions, err := h.coordinator.BuildActions(ctx, groupID, r.URL.Query().Get("node_id"))
	if err != nil {
		h.sendCoordinatorError(ctx, w, err)
		return
	}
	sendJSON(h.logger, w, api.ActionListResponse{
		GroupID: groupID,
		Actions: actions,
	}, http.StatusOK)
}

// Status обрабатывает GET /api/v1/sync/status?group_id=
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID := r.URL.Query().Get("group_id")
	if groupID == "" {
		sendError(h.logger, w, "group_id is required", http.StatusBadRequest)
		return
	}

	summary, err := h.coordinator.StatusSummary(ctx, groupID)
	if err != nil {
		h.sendCoordinatorError(ctx, w, err)
		return
	}
	sendJSON(h.logger, w, summary, http.StatusOK)
}

// UpdateState обрабатывает POST /api/v1/sync/state
// Нода сообщает результат выполнения инструкции
func (h *SyncHandler) UpdateState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.UpdateSyncStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode state update", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Нода может отчитываться только за себя
	if nodeID, ok := GetNodeID(ctx); ok && req.NodeID != nodeID {
		sendError(h.logger, w, "node can only report its own state", http.StatusForbidden)
		return
	}

	state, err := h.coordinator.UpdateSyncState(ctx, req)
	if err != nil {
		if errors.Is(err, storage.ErrGroupNotFound) {
			sendError(h.logger, w, "group not found", http.StatusNotFound)
			return
		}
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.InfoContext(ctx, "sync state updated",
		slog.String("group_id", req.GroupID),
		slog.String("dataset", req.Dataset),
		slog.String("node_id", req.NodeID),
		slog.String("status", req.Status))

	sendJSON(h.logger, w, state, http.StatusOK)
}

func (h *SyncHandler) sendCoordinatorError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrGroupNotFound):
		sendError(h.logger, w, "group not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrNodeNotFound):
		sendError(h.logger, w, "node not found", http.StatusNotFound)
	case errors.Is(err, reconcile.ErrInvalidTopology):
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.ErrorContext(ctx, "coordinator call failed", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
	}
}
