package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/internal/server/storage"
	"github.com/iudanet/zfswitness/pkg/api"
)

// NodeHandler обрабатывает запросы управления нодами
type NodeHandler struct {
	logger    *slog.Logger
	nodes     storage.NodeStorage
	snapshots storage.SnapshotStorage
}

// NewNodeHandler создает новый handler для нод
func NewNodeHandler(logger *slog.Logger, nodes storage.NodeStorage, snapshots storage.SnapshotStorage) *NodeHandler {
	return &NodeHandler{
		logger:    logger,
		nodes:     nodes,
		snapshots: snapshots,
	}
}

// Register обрабатывает POST /api/v1/nodes
// Регистрация новой ноды. Повторная регистрация существующего hostname
// ротирует API ключ и сбрасывает инвентарь снапшотов ноды.
func (h *NodeHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode register request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Hostname == "" {
		sendError(h.logger, w, "hostname is required", http.StatusBadRequest)
		return
	}
	if req.TransportPort == 0 {
		req.TransportPort = 22
	}

	apiKey, err := GenerateAPIKey()
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate api key", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	existing, err := h.nodes.GetNodeByHostname(ctx, req.Hostname)
	switch {
	case err == nil:
		h.reRegister(w, r, existing, req, apiKey)
		return
	case errors.Is(err, storage.ErrNodeNotFound):
		// новая нода
	default:
		h.logger.ErrorContext(ctx, "failed to look up node", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	node := &models.Node{
		ID:                 uuid.New().String(),
		Hostname:           req.Hostname,
		Platform:           req.Platform,
		ConnectivityStatus: "registered",
		TransportHostname:  req.TransportHostname,
		TransportUser:      req.TransportUser,
		TransportPort:      req.TransportPort,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := h.nodes.CreateNode(ctx, node, HashAPIKey(apiKey)); err != nil {
		if errors.Is(err, storage.ErrNodeAlreadyExists) {
			sendError(h.logger, w, "hostname already taken", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create node", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "node registered",
		slog.String("node_id", node.ID),
		slog.String("hostname", node.Hostname))

	sendJSON(h.logger, w, api.RegisterNodeResponse{
		Node:   toAPINode(node),
		APIKey: apiKey,
	}, http.StatusCreated)
}

// reRegister обновляет существующую ноду: новый ключ, новые transport поля,
// инвентарь снапшотов начинается с чистого листа
func (h *NodeHandler) reRegister(w http.ResponseWriter, r *http.Request, node *models.Node, req api.RegisterNodeRequest, apiKey string) {
	ctx := r.Context()

	node.Platform = req.Platform
	node.TransportHostname = req.TransportHostname
	node.TransportUser = req.TransportUser
	node.TransportPort = req.TransportPort
	node.UpdatedAt = time.Now().UTC()

	if err := h.nodes.UpdateNode(ctx, node); err != nil {
		h.logger.ErrorContext(ctx, "failed to update node", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err := h.nodes.RotateAPIKey(ctx, node.ID, HashAPIKey(apiKey)); err != nil {
		h.logger.ErrorContext(ctx, "failed to rotate api key", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err := h.snapshots.DeleteByNode(ctx, node.ID); err != nil {
		h.logger.ErrorContext(ctx, "failed to reset snapshot inventory", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "node re-registered",
		slog.String("node_id", node.ID),
		slog.String("hostname", node.Hostname))

	sendJSON(h.logger, w, api.RegisterNodeResponse{
		Node:   toAPINode(node),
		APIKey: apiKey,
	}, http.StatusOK)
}

// List обрабатывает GET /api/v1/nodes
func (h *NodeHandler) List(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.nodes.ListNodes(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list nodes", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.NodeListResponse{Nodes: make([]api.Node, 0, len(nodes))}
	for _, node := range nodes {
		resp.Nodes = append(resp.Nodes, toAPINode(node))
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Get обрабатывает GET /api/v1/nodes/{id}
func (h *NodeHandler) Get(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("id")
	if nodeID == "" {
		sendError(h.logger, w, "node id is required", http.StatusBadRequest)
		return
	}

	node, err := h.nodes.GetNode(r.Context(), nodeID)
	if err != nil {
		if errors.Is(err, storage.ErrNodeNotFound) {
			sendError(h.logger, w, "node not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get node", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}
	sendJSON(h.logger, w, toAPINode(node), http.StatusOK)
}

// Delete обрабатывает DELETE /api/v1/nodes/{id}
// Снапшоты ноды удаляются каскадом
func (h *NodeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("id")
	if nodeID == "" {
		sendError(h.logger, w, "node id is required", http.StatusBadRequest)
		return
	}

	if err := h.nodes.DeleteNode(r.Context(), nodeID); err != nil {
		if errors.Is(err, storage.ErrNodeNotFound) {
			sendError(h.logger, w, "node not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to delete node", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(r.Context(), "node deleted", slog.String("node_id", nodeID))
	w.WriteHeader(http.StatusNoContent)
}

func toAPINode(node *models.Node) api.Node {
	return api.Node{
		ID:                 node.ID,
		Hostname:           node.Hostname,
		Platform:           node.Platform,
		ConnectivityStatus: node.ConnectivityStatus,
		TransportHostname:  node.TransportHostname,
		TransportUser:      node.TransportUser,
		TransportPort:      node.TransportPort,
		LastSeen:           node.LastSeen,
		CreatedAt:          node.CreatedAt,
	}
}
