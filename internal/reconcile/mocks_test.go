package reconcile

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/internal/server/storage"
)

// In-memory storage fakes. Достаточно для ядра: никакой конкуренции,
// никаких транзакций.

type memNodeStorage struct {
	nodes map[string]*models.Node
}

func newMemNodeStorage(nodes ...*models.Node) *memNodeStorage {
	m := &memNodeStorage{nodes: make(map[string]*models.Node)}
	for _, n := range nodes {
		m.nodes[n.ID] = n
	}
	return m
}

func (m *memNodeStorage) CreateNode(_ context.Context, node *models.Node, _ string) error {
	m.nodes[node.ID] = node
	return nil
}

func (m *memNodeStorage) GetNode(_ context.Context, nodeID string) (*models.Node, error) {
	node, ok := m.nodes[nodeID]
	if !ok {
		return nil, storage.ErrNodeNotFound
	}
	return node, nil
}

func (m *memNodeStorage) GetNodeByHostname(_ context.Context, hostname string) (*models.Node, error) {
	for _, node := range m.nodes {
		if node.Hostname == hostname {
			return node, nil
		}
	}
	return nil, storage.ErrNodeNotFound
}

func (m *memNodeStorage) GetNodeByAPIKeyHash(_ context.Context, _ string) (*models.Node, error) {
	return nil, storage.ErrNodeNotFound
}

func (m *memNodeStorage) ListNodes(_ context.Context) ([]*models.Node, error) {
	out := make([]*models.Node, 0, len(m.nodes))
	for _, node := range m.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memNodeStorage) UpdateNode(_ context.Context, node *models.Node) error {
	m.nodes[node.ID] = node
	return nil
}

func (m *memNodeStorage) RotateAPIKey(_ context.Context, _, _ string) error { return nil }

func (m *memNodeStorage) UpdateLastSeen(_ context.Context, _ string, _ time.Time) error { return nil }

func (m *memNodeStorage) DeleteNode(_ context.Context, nodeID string) error {
	delete(m.nodes, nodeID)
	return nil
}

type memSnapshotStorage struct {
	snaps []*models.Snapshot
}

func (m *memSnapshotStorage) AddSnapshots(_ context.Context, snapshots []*models.Snapshot) error {
	m.snaps = append(m.snaps, snapshots...)
	return nil
}

func (m *memSnapshotStorage) ListByNode(_ context.Context, nodeID string) ([]*models.Snapshot, error) {
	out := make([]*models.Snapshot, 0)
	for _, s := range m.snaps {
		if s.NodeID == nodeID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSnapshotStorage) ListByNodeDataset(_ context.Context, nodeID, dataset string) ([]*models.Snapshot, error) {
	out := make([]*models.Snapshot, 0)
	for _, s := range m.snaps {
		if s.NodeID == nodeID && s.Dataset == dataset {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSnapshotStorage) ListByPoolDataset(_ context.Context, pool, dataset, nodeID string) ([]*models.Snapshot, error) {
	out := make([]*models.Snapshot, 0)
	for _, s := range m.snaps {
		if s.NodeID == nodeID && s.Pool == pool && s.Dataset == dataset {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSnapshotStorage) DeleteByName(_ context.Context, nodeID, pool, dataset, name string) error {
	out := m.snaps[:0]
	for _, s := range m.snaps {
		if !(s.NodeID == nodeID && s.Pool == pool && s.Dataset == dataset && s.Name == name) {
			out = append(out, s)
		}
	}
	m.snaps = out
	return nil
}

func (m *memSnapshotStorage) DeleteByNode(_ context.Context, nodeID string) error {
	out := m.snaps[:0]
	for _, s := range m.snaps {
		if s.NodeID != nodeID {
			out = append(out, s)
		}
	}
	m.snaps = out
	return nil
}

type memGroupStorage struct {
	groups map[string]*models.SyncGroup
}

func newMemGroupStorage(groups ...*models.SyncGroup) *memGroupStorage {
	m := &memGroupStorage{groups: make(map[string]*models.SyncGroup)}
	for _, g := range groups {
		m.groups[g.ID] = g
	}
	return m
}

func (m *memGroupStorage) CreateGroup(_ context.Context, group *models.SyncGroup) error {
	m.groups[group.ID] = group
	return nil
}

func (m *memGroupStorage) GetGroup(_ context.Context, groupID string) (*models.SyncGroup, error) {
	group, ok := m.groups[groupID]
	if !ok {
		return nil, storage.ErrGroupNotFound
	}
	return group, nil
}

func (m *memGroupStorage) ListGroups(_ context.Context) ([]*models.SyncGroup, error) {
	return m.listAll(func(*models.SyncGroup) bool { return true }), nil
}

func (m *memGroupStorage) ListEnabledGroups(_ context.Context) ([]*models.SyncGroup, error) {
	return m.listAll(func(g *models.SyncGroup) bool { return g.Enabled }), nil
}

func (m *memGroupStorage) ListGroupsForNode(_ context.Context, nodeID string) ([]*models.SyncGroup, error) {
	return m.listAll(func(g *models.SyncGroup) bool { return g.HasNode(nodeID) }), nil
}

func (m *memGroupStorage) UpdateGroup(_ context.Context, group *models.SyncGroup) error {
	m.groups[group.ID] = group
	return nil
}

func (m *memGroupStorage) DeleteGroup(_ context.Context, groupID string) error {
	delete(m.groups, groupID)
	return nil
}

func (m *memGroupStorage) listAll(keep func(*models.SyncGroup) bool) []*models.SyncGroup {
	out := make([]*models.SyncGroup, 0, len(m.groups))
	for _, g := range m.groups {
		if keep(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memStateStorage struct {
	states map[string]*models.SyncState
}

func newMemStateStorage() *memStateStorage {
	return &memStateStorage{states: make(map[string]*models.SyncState)}
}

func stateKeyOf(groupID, dataset, nodeID string) string {
	return groupID + "|" + dataset + "|" + nodeID
}

func (m *memStateStorage) UpsertSyncState(_ context.Context, groupID, dataset, nodeID string,
	status models.SyncStatus, errorMessage string) (*models.SyncState, error) {
	key := stateKeyOf(groupID, dataset, nodeID)
	now := time.Now().UTC()

	state, ok := m.states[key]
	if !ok {
		state = &models.SyncState{
			ID:        uuid.NewString(),
			GroupID:   groupID,
			Dataset:   dataset,
			NodeID:    nodeID,
			CreatedAt: now,
		}
		m.states[key] = state
	}
	state.Status = status
	state.ErrorMessage = errorMessage
	state.LastCheck = &now
	if status == models.SyncStatusInSync {
		state.LastSync = &now
	}
	state.UpdatedAt = now
	return state, nil
}

func (m *memStateStorage) GetSyncState(_ context.Context, groupID, dataset, nodeID string) (*models.SyncState, error) {
	state, ok := m.states[stateKeyOf(groupID, dataset, nodeID)]
	if !ok {
		return nil, storage.ErrSyncStateNotFound
	}
	return state, nil
}

func (m *memStateStorage) ListByGroup(_ context.Context, groupID string) ([]*models.SyncState, error) {
	out := make([]*models.SyncState, 0)
	for _, state := range m.states {
		if state.GroupID == groupID {
			out = append(out, state)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// testSnapshot собирает запись с таймстампом, выведенным из boundary имени,
// если ts не задан явно
func testSnapshot(nodeID, pool, dataset, name string, ts time.Time, size *int64) *models.Snapshot {
	return &models.Snapshot{
		ID:        uuid.NewString(),
		NodeID:    nodeID,
		Pool:      pool,
		Dataset:   dataset,
		Name:      pool + "/" + dataset + "@" + name,
		Timestamp: ts,
		Size:      size,
		CreatedAt: ts,
	}
}

func int64Ptr(v int64) *int64 { return &v }
