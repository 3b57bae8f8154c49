package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/internal/server/storage"
	"github.com/iudanet/zfswitness/pkg/api"
)

// SnapshotHandler обрабатывает отчеты нод об инвентаре снапшотов
type SnapshotHandler struct {
	logger    *slog.Logger
	snapshots storage.SnapshotStorage
}

// NewSnapshotHandler создает новый handler для снапшотов
func NewSnapshotHandler(logger *slog.Logger, snapshots storage.SnapshotStorage) *SnapshotHandler {
	return &SnapshotHandler{
		logger:    logger,
		snapshots: snapshots,
	}
}

// Report обрабатывает POST /api/v1/snapshots/report
// Нода определяется по API ключу. Full=true — полный инвентарь, сервер
// сам вычисляет дельту; иначе нода присылает added/removed по своему кешу.
func (h *SnapshotHandler) Report(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	nodeID, ok := GetNodeID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "node id not found in context")
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode report", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	added, removed := req.Added, req.Removed
	unchanged := 0
	if req.Full {
		existing, err := h.snapshots.ListByNode(ctx, nodeID)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to list snapshots", slog.Any("error", err))
			sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
			return
		}
		added, removed, unchanged = diffInventory(existing, req.Snapshots)
	}

	if len(added) > 0 {
		records := make([]*models.Snapshot, 0, len(added))
		for _, rec := range added {
			records = append(records, &models.Snapshot{
				ID:        uuid.New().String(),
				NodeID:    nodeID,
				Pool:      rec.Pool,
				Dataset:   rec.Dataset,
				Name:      rec.Name,
				Timestamp: rec.Timestamp.UTC(),
				Size:      rec.Size,
				CreatedAt: time.Now().UTC(),
			})
		}
		if err := h.snapshots.AddSnapshots(ctx, records); err != nil {
			h.logger.ErrorContext(ctx, "failed to add snapshots", slog.Any("error", err))
			sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
			return
		}
	}

	for _, rec := range removed {
		if err := h.snapshots.DeleteByName(ctx, nodeID, rec.Pool, rec.Dataset, rec.Name); err != nil {
			h.logger.ErrorContext(ctx, "failed to delete snapshot",
				slog.String("name", rec.Name), slog.Any("error", err))
			sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
			return
		}
	}

	h.logger.InfoContext(ctx, "snapshot report processed",
		slog.String("node_id", nodeID),
		slog.Bool("full", req.Full),
		slog.Int("added", len(added)),
		slog.Int("removed", len(removed)))

	sendJSON(h.logger, w, api.ReportResponse{
		NodeID:    nodeID,
		Added:     len(added),
		Removed:   len(removed),
		Unchanged: unchanged,
		Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

// List обрабатывает GET /api/v1/snapshots?node_id=&pool=&dataset=
func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	nodeID := r.URL.Query().Get("node_id")
	if nodeID == "" {
		// Нода без параметра смотрит свой инвентарь
		if id, ok := GetNodeID(ctx); ok {
			nodeID = id
		}
	}
	if nodeID == "" {
		sendError(h.logger, w, "node_id is required", http.StatusBadRequest)
		return
	}

	pool := r.URL.Query().Get("pool")
	dataset := r.URL.Query().Get("dataset")

	var (
		snaps []*models.Snapshot
		err   error
	)
	switch {
	case pool != "" && dataset != "":
		snaps, err = h.snapshots.ListByPoolDataset(ctx, pool, dataset, nodeID)
	case dataset != "":
		snaps, err = h.snapshots.ListByNodeDataset(ctx, nodeID, dataset)
	default:
		snaps, err = h.snapshots.ListByNode(ctx, nodeID)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list snapshots", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.SnapshotListResponse{Snapshots: make([]api.SnapshotInfo, 0, len(snaps))}
	for _, s := range snaps {
		resp.Snapshots = append(resp.Snapshots, api.SnapshotInfo{
			ID:        s.ID,
			NodeID:    s.NodeID,
			Pool:      s.Pool,
			Dataset:   s.Dataset,
			Name:      s.Name,
			Timestamp: s.Timestamp,
			Size:      s.Size,
		})
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// inventoryKey идентичность снапшота в пределах ноды
func inventoryKey(pool, dataset, name string) string {
	return pool + "\x00" + dataset + "\x00" + models.ExtractSnapshotName(name)
}

// diffInventory сравнивает полный отчет с сохраненным инвентарем
func diffInventory(existing []*models.Snapshot, reported []api.SnapshotRecord) (added, removed []api.SnapshotRecord, unchanged int) {
	have := make(map[string]*models.Snapshot, len(existing))
	for _, s := range existing {
		have[inventoryKey(s.Pool, s.Dataset, s.Name)] = s
	}

	seen := make(map[string]bool, len(reported))
	for _, rec := range reported {
		key := inventoryKey(rec.Pool, rec.Dataset, rec.Name)
		seen[key] = true
		if _, ok := have[key]; ok {
			unchanged++
		} else {
			added = append(added, rec)
		}
	}

	for key, s := range have {
		if !seen[key] {
			removed = append(removed, api.SnapshotRecord{
				Pool:      s.Pool,
				Dataset:   s.Dataset,
				Name:      s.Name,
				Timestamp: s.Timestamp,
				Size:      s.Size,
			})
		}
	}
	return added, removed, unchanged
}
