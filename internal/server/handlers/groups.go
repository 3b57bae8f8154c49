package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/internal/server/storage"
	"github.com/iudanet/zfswitness/pkg/api"
)

// GroupHandler обрабатывает запросы управления sync-группами
type GroupHandler struct {
	logger *slog.Logger
	groups storage.GroupStorage
	nodes  storage.NodeStorage
}

// NewGroupHandler создает новый handler для групп
func NewGroupHandler(logger *slog.Logger, groups storage.GroupStorage, nodes storage.NodeStorage) *GroupHandler {
	return &GroupHandler{
		logger: logger,
		groups: groups,
		nodes:  nodes,
	}
}

// Create обрабатывает POST /api/v1/groups
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode create group request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		sendError(h.logger, w, "name is required", http.StatusBadRequest)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now().UTC()
	group := &models.SyncGroup{
		ID:                  uuid.New().String(),
		Name:                req.Name,
		Description:         req.Description,
		Enabled:             enabled,
		Directional:         req.Directional,
		HubNodeID:           req.HubNodeID,
		SyncIntervalSeconds: req.SyncIntervalSeconds,
		NodeIDs:             req.NodeIDs,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := h.validateGroup(r, group); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.groups.CreateGroup(ctx, group); err != nil {
		if errors.Is(err, storage.ErrGroupAlreadyExists) {
			sendError(h.logger, w, "group name already taken", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create group", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "group created",
		slog.String("group_id", group.ID),
		slog.String("name", group.Name))

	sendJSON(h.logger, w, toAPIGroup(group), http.StatusCreated)
}

// List обрабатывает GET /api/v1/groups
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.ListGroups(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list groups", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.GroupListResponse{Groups: make([]api.Group, 0, len(groups))}
	for _, group := range groups {
		resp.Groups = append(resp.Groups, toAPIGroup(group))
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Get обрабатывает GET /api/v1/groups/{id}
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	group, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	sendJSON(h.logger, w, toAPIGroup(group), http.StatusOK)
}

// Update обрабатывает PATCH /api/v1/groups/{id}
// nil-поля запроса не трогаются
func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	group, ok := h.loadGroup(w, r)
	if !ok {
		return
	}

	var req api.UpdateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode update group request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Description != nil {
		group.Description = *req.Description
	}
	if req.Enabled != nil {
		group.Enabled = *req.Enabled
	}
	if req.Directional != nil {
		group.Directional = *req.Directional
	}
	if req.HubNodeID != nil {
		group.HubNodeID = *req.HubNodeID
	}
	if req.SyncIntervalSeconds != nil {
		group.SyncIntervalSeconds = *req.SyncIntervalSeconds
	}
	if req.NodeIDs != nil {
		group.NodeIDs = req.NodeIDs
	}
	group.UpdatedAt = time.Now().UTC()

	if err := h.validateGroup(r, group); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.groups.UpdateGroup(ctx, group); err != nil {
		h.logger.ErrorContext(ctx, "failed to update group", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "group updated", slog.String("group_id", group.ID))
	sendJSON(h.logger, w, toAPIGroup(group), http.StatusOK)
}

// Delete обрабатывает DELETE /api/v1/groups/{id}
func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	if groupID == "" {
		sendError(h.logger, w, "group id is required", http.StatusBadRequest)
		return
	}

	if err := h.groups.DeleteGroup(r.Context(), groupID); err != nil {
		if errors.Is(err, storage.ErrGroupNotFound) {
			sendError(h.logger, w, "group not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to delete group", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(r.Context(), "group deleted", slog.String("group_id", groupID))
	w.WriteHeader(http.StatusNoContent)
}

// validateGroup проверяет состав группы и hub-инвариант:
// directional группа обязана иметь hub, и hub обязан быть участником.
// Нарушение — ошибка запроса, никогда не молчаливая деградация топологии.
func (h *GroupHandler) validateGroup(r *http.Request, group *models.SyncGroup) error {
	if len(group.NodeIDs) == 0 {
		return fmt.Errorf("node_ids must not be empty")
	}

	for _, nodeID := range group.NodeIDs {
		if _, err := h.nodes.GetNode(r.Context(), nodeID); err != nil {
			if errors.Is(err, storage.ErrNodeNotFound) {
				return fmt.Errorf("node %s does not exist", nodeID)
			}
			return fmt.Errorf("failed to verify node %s: %w", nodeID, err)
		}
	}

	if group.Directional {
		if group.HubNodeID == "" {
			return fmt.Errorf("directional group requires hub_node_id")
		}
		if !group.HasNode(group.HubNodeID) {
			return fmt.Errorf("hub_node_id %s is not a group member", group.HubNodeID)
		}
	}
	return nil
}

func (h *GroupHandler) loadGroup(w http.ResponseWriter, r *http.Request) (*models.SyncGroup, bool) {
	groupID := r.PathValue("id")
	if groupID == "" {
		sendError(h.logger, w, "group id is required", http.StatusBadRequest)
		return nil, false
	}

	group, err := h.groups.GetGroup(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, storage.ErrGroupNotFound) {
			sendError(h.logger, w, "group not found", http.StatusNotFound)
			return nil, false
		}
		h.logger.ErrorContext(r.Context(), "failed to get group", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return group, true
}

func toAPIGroup(group *models.SyncGroup) api.Group {
	return api.Group{
		ID:                  group.ID,
		Name:                group.Name,
		Description:         group.Description,
		Enabled:             group.Enabled,
		Directional:         group.Directional,
		HubNodeID:           group.HubNodeID,
		SyncIntervalSeconds: group.SyncIntervalSeconds,
		NodeIDs:             group.NodeIDs,
		CreatedAt:           group.CreatedAt,
	}
}
