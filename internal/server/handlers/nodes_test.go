package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/pkg/api"
)

func registerNode(t *testing.T, h *NodeHandler, req api.RegisterNodeRequest) (api.RegisterNodeResponse, int) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/nodes", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Register(rec, httpReq)

	var resp api.RegisterNodeResponse
	if rec.Code == http.StatusCreated || rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return resp, rec.Code
}

func TestRegisterNewNode(t *testing.T) {
	nodes := newMemNodeStorage()
	snapshots := &memSnapshotStorage{}
	h := NewNodeHandler(testLogger(), nodes, snapshots)

	resp, code := registerNode(t, h, api.RegisterNodeRequest{
		Hostname:          "node-a",
		Platform:          "linux/amd64",
		TransportHostname: "node-a.internal",
		TransportUser:     "zfsrecv",
	})

	require.Equal(t, http.StatusCreated, code)
	assert.True(t, strings.HasPrefix(resp.APIKey, "zfsw_"))
	assert.Equal(t, "node-a", resp.Node.Hostname)
	assert.Equal(t, 22, resp.Node.TransportPort, "default ssh port")

	// Ключ находит ноду через его хеш
	node, err := nodes.GetNodeByAPIKeyHash(context.Background(), HashAPIKey(resp.APIKey))
	require.NoError(t, err)
	assert.Equal(t, resp.Node.ID, node.ID)
}

func TestRegisterMissingHostname(t *testing.T) {
	h := NewNodeHandler(testLogger(), newMemNodeStorage(), &memSnapshotStorage{})
	_, code := registerNode(t, h, api.RegisterNodeRequest{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReRegisterRotatesKeyAndResetsInventory(t *testing.T) {
	nodes := newMemNodeStorage()
	snapshots := &memSnapshotStorage{}
	h := NewNodeHandler(testLogger(), nodes, snapshots)

	first, code := registerNode(t, h, api.RegisterNodeRequest{Hostname: "node-a"})
	require.Equal(t, http.StatusCreated, code)

	// Нода успела отчитаться об инвентаре
	require.NoError(t, snapshots.AddSnapshots(context.Background(), []*models.Snapshot{{
		ID:      uuid.NewString(),
		NodeID:  first.Node.ID,
		Pool:    "tank",
		Dataset: "data",
		Name:    "2025-11-01-000000",
	}}))

	second, code := registerNode(t, h, api.RegisterNodeRequest{
		Hostname:          "node-a",
		TransportHostname: "node-a.new.internal",
		TransportPort:     2222,
	})
	require.Equal(t, http.StatusOK, code, "re-registration is 200, not 201")
	assert.Equal(t, first.Node.ID, second.Node.ID, "node identity is stable")
	assert.NotEqual(t, first.APIKey, second.APIKey)

	// Старый ключ отозван
	_, err := nodes.GetNodeByAPIKeyHash(context.Background(), HashAPIKey(first.APIKey))
	assert.Error(t, err)

	// Инвентарь начинается с чистого листа
	snaps, err := snapshots.ListByNode(context.Background(), first.Node.ID)
	require.NoError(t, err)
	assert.Empty(t, snaps)

	node, err := nodes.GetNode(context.Background(), first.Node.ID)
	require.NoError(t, err)
	assert.Equal(t, "node-a.new.internal", node.TransportHostname)
	assert.Equal(t, 2222, node.TransportPort)
}

func TestGetNodeNotFound(t *testing.T) {
	h := NewNodeHandler(testLogger(), newMemNodeStorage(), &memSnapshotStorage{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nodes/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListNodes(t *testing.T) {
	nodes := newMemNodeStorage()
	h := NewNodeHandler(testLogger(), nodes, &memSnapshotStorage{})

	now := time.Now().UTC()
	require.NoError(t, nodes.CreateNode(context.Background(), &models.Node{
		ID: uuid.NewString(), Hostname: "node-a", CreatedAt: now, UpdatedAt: now,
	}, "hash-a"))
	require.NoError(t, nodes.CreateNode(context.Background(), &models.Node{
		ID: uuid.NewString(), Hostname: "node-b", CreatedAt: now, UpdatedAt: now,
	}, "hash-b"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.NodeListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Nodes, 2)
}

func TestDeleteNode(t *testing.T) {
	nodes := newMemNodeStorage()
	h := NewNodeHandler(testLogger(), nodes, &memSnapshotStorage{})

	node := &models.Node{ID: uuid.NewString(), Hostname: "node-a"}
	require.NoError(t, nodes.CreateNode(context.Background(), node, "hash"))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/nodes/"+node.ID, nil)
	req.SetPathValue("id", node.ID)
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/nodes/"+node.ID, nil)
	req.SetPathValue("id", node.ID)
	h.Delete(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
