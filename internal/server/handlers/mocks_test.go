package handlers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/internal/reconcile"
	"github.com/iudanet/zfswitness/internal/server/storage"
	"github.com/iudanet/zfswitness/pkg/api"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type memNodeStorage struct {
	mu     sync.Mutex
	nodes  map[string]*models.Node
	hashes map[string]string // nodeID -> api key hash
}

func newMemNodeStorage() *memNodeStorage {
	return &memNodeStorage{
		nodes:  make(map[string]*models.Node),
		hashes: make(map[string]string),
	}
}

func (m *memNodeStorage) CreateNode(_ context.Context, node *models.Node, apiKeyHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		if n.Hostname == node.Hostname {
			return storage.ErrNodeAlreadyExists
		}
	}
	m.nodes[node.ID] = node
	m.hashes[node.ID] = apiKeyHash
	return nil
}

func (m *memNodeStorage) GetNode(_ context.Context, nodeID string) (*models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[nodeID]
	if !ok {
		return nil, storage.ErrNodeNotFound
	}
	return node, nil
}

func (m *memNodeStorage) GetNodeByHostname(_ context.Context, hostname string) (*models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		if n.Hostname == hostname {
			return n, nil
		}
	}
	return nil, storage.ErrNodeNotFound
}

func (m *memNodeStorage) GetNodeByAPIKeyHash(_ context.Context, hash string) (*models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, h := range m.hashes {
		if h == hash {
			return m.nodes[id], nil
		}
	}
	return nil, storage.ErrNodeNotFound
}

func (m *memNodeStorage) ListNodes(_ context.Context) ([]*models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nodes := make([]*models.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (m *memNodeStorage) UpdateNode(_ context.Context, node *models.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[node.ID]; !ok {
		return storage.ErrNodeNotFound
	}
	m.nodes[node.ID] = node
	return nil
}

func (m *memNodeStorage) RotateAPIKey(_ context.Context, nodeID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[nodeID]; !ok {
		return storage.ErrNodeNotFound
	}
	m.hashes[nodeID] = newHash
	return nil
}

func (m *memNodeStorage) UpdateLastSeen(_ context.Context, nodeID string, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[nodeID]
	if !ok {
		return storage.ErrNodeNotFound
	}
	node.LastSeen = &lastSeen
	return nil
}

func (m *memNodeStorage) DeleteNode(_ context.Context, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[nodeID]; !ok {
		return storage.ErrNodeNotFound
	}
	delete(m.nodes, nodeID)
	delete(m.hashes, nodeID)
	return nil
}

type memSnapshotStorage struct {
	mu        sync.Mutex
	snapshots []*models.Snapshot
}

func (m *memSnapshotStorage) AddSnapshots(_ context.Context, snapshots []*models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range snapshots {
		if m.findLocked(snap.NodeID, snap.Pool, snap.Dataset, snap.Name) == nil {
			m.snapshots = append(m.snapshots, snap)
		}
	}
	return nil
}

func (m *memSnapshotStorage) findLocked(nodeID, pool, dataset, name string) *models.Snapshot {
	for _, s := range m.snapshots {
		if s.NodeID == nodeID && s.Pool == pool && s.Dataset == dataset && s.Name == name {
			return s
		}
	}
	return nil
}

func (m *memSnapshotStorage) ListByNode(_ context.Context, nodeID string) ([]*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Snapshot
	for _, s := range m.snapshots {
		if s.NodeID == nodeID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSnapshotStorage) ListByNodeDataset(_ context.Context, nodeID, dataset string) ([]*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Snapshot
	for _, s := range m.snapshots {
		if s.NodeID == nodeID && s.Dataset == dataset {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSnapshotStorage) ListByPoolDataset(_ context.Context, pool, dataset, nodeID string) ([]*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Snapshot
	for _, s := range m.snapshots {
		if s.Pool == pool && s.Dataset == dataset && s.NodeID == nodeID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSnapshotStorage) DeleteByName(_ context.Context, nodeID, pool, dataset, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.snapshots {
		if s.NodeID == nodeID && s.Pool == pool && s.Dataset == dataset && s.Name == name {
			m.snapshots = append(m.snapshots[:i], m.snapshots[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memSnapshotStorage) DeleteByNode(_ context.Context, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.snapshots[:0]
	for _, s := range m.snapshots {
		if s.NodeID != nodeID {
			kept = append(kept, s)
		}
	}
	m.snapshots = kept
	return nil
}

type memGroupStorage struct {
	mu     sync.Mutex
	groups map[string]*models.SyncGroup
}

func newMemGroupStorage() *memGroupStorage {
	return &memGroupStorage{groups: make(map[string]*models.SyncGroup)}
}

func (m *memGroupStorage) CreateGroup(_ context.Context, group *models.SyncGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.Name == group.Name {
			return storage.ErrGroupAlreadyExists
		}
	}
	m.groups[group.ID] = group
	return nil
}

func (m *memGroupStorage) GetGroup(_ context.Context, groupID string) (*models.SyncGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[groupID]
	if !ok {
		return nil, storage.ErrGroupNotFound
	}
	return group, nil
}

func (m *memGroupStorage) ListGroups(_ context.Context) ([]*models.SyncGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	groups := make([]*models.SyncGroup, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, g)
	}
	return groups, nil
}

func (m *memGroupStorage) ListEnabledGroups(_ context.Context) ([]*models.SyncGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var groups []*models.SyncGroup
	for _, g := range m.groups {
		if g.Enabled {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

func (m *memGroupStorage) ListGroupsForNode(_ context.Context, nodeID string) ([]*models.SyncGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var groups []*models.SyncGroup
	for _, g := range m.groups {
		if g.HasNode(nodeID) {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

func (m *memGroupStorage) UpdateGroup(_ context.Context, group *models.SyncGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[group.ID]; !ok {
		return storage.ErrGroupNotFound
	}
	m.groups[group.ID] = group
	return nil
}

func (m *memGroupStorage) DeleteGroup(_ context.Context, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[groupID]; !ok {
		return storage.ErrGroupNotFound
	}
	delete(m.groups, groupID)
	return nil
}

// stubCoordinator записывает вызовы и возвращает настроенные ответы
type stubCoordinator struct {
	instructions []api.DatasetSyncInstruction
	diagnostics  []string
	mismatches   []api.Mismatch
	actions      []api.ReplicationAction
	summary      *api.SyncStatusSummary
	state        *models.SyncState
	err          error

	lastGroupID  string
	lastNodeID   string
	lastStateReq api.UpdateSyncStateRequest
}

func (c *stubCoordinator) DetectMismatches(_ context.Context, groupID string) ([]api.Mismatch, error) {
	c.lastGroupID = groupID
	return c.mismatches, c.err
}

func (c *stubCoordinator) BuildActions(_ context.Context, groupID, nodeID string) ([]api.ReplicationAction, error) {
	c.lastGroupID = groupID
	c.lastNodeID = nodeID
	return c.actions, c.err
}

func (c *stubCoordinator) GroupInstructions(_ context.Context, groupID string, _ bool) ([]api.DatasetSyncInstruction, []string, error) {
	c.lastGroupID = groupID
	return c.instructions, c.diagnostics, c.err
}

func (c *stubCoordinator) InstructionsForNode(_ context.Context, nodeID string, _ bool) (*api.InstructionsResponse, error) {
	c.lastNodeID = nodeID
	if c.err != nil {
		return nil, c.err
	}
	return &api.InstructionsResponse{NodeID: nodeID, Datasets: c.instructions}, nil
}

func (c *stubCoordinator) UpdateSyncState(_ context.Context, req api.UpdateSyncStateRequest) (*models.SyncState, error) {
	c.lastStateReq = req
	if c.err != nil {
		return nil, c.err
	}
	if c.state != nil {
		return c.state, nil
	}
	return &models.SyncState{
		GroupID: req.GroupID,
		Dataset: req.Dataset,
		NodeID:  req.NodeID,
		Status:  models.SyncStatus(req.Status),
	}, nil
}

func (c *stubCoordinator) StatusSummary(_ context.Context, groupID string) (*api.SyncStatusSummary, error) {
	c.lastGroupID = groupID
	if c.err != nil {
		return nil, c.err
	}
	if c.summary != nil {
		return c.summary, nil
	}
	return &api.SyncStatusSummary{GroupID: groupID}, nil
}

// stubResolver записывает вызовы сервиса конфликтов
type stubResolver struct {
	conflicts  []api.Conflict
	resolution *api.Resolution
	resolveErr error
	detectErr  error

	lastDataset  string
	lastStrategy reconcile.Strategy
	marked       []*api.Resolution
}

func (r *stubResolver) DetectConflicts(_ context.Context, _, dataset string) ([]api.Conflict, error) {
	r.lastDataset = dataset
	return r.conflicts, r.detectErr
}

func (r *stubResolver) DetectAllConflicts(_ context.Context, _ string) ([]api.Conflict, error) {
	r.lastDataset = ""
	return r.conflicts, r.detectErr
}

func (r *stubResolver) ResolveConflict(conflict api.Conflict, strategy reconcile.Strategy) (*api.Resolution, error) {
	r.lastStrategy = strategy
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	if r.resolution != nil {
		return r.resolution, nil
	}
	return &api.Resolution{
		Status:   reconcile.ResolutionResolved,
		Strategy: string(strategy),
		Conflict: conflict,
	}, nil
}

func (r *stubResolver) MarkResolved(_ context.Context, resolution *api.Resolution) error {
	r.marked = append(r.marked, resolution)
	return nil
}
