package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/pkg/api"
)

type conflictFixture struct {
	snaps  *memSnapshotStorage
	groups *memGroupStorage
	states *memStateStorage
	svc    *ConflictService
}

func newConflictFixture(t *testing.T, groups ...*models.SyncGroup) *conflictFixture {
	t.Helper()
	f := &conflictFixture{
		snaps:  &memSnapshotStorage{},
		groups: newMemGroupStorage(groups...),
		states: newMemStateStorage(),
	}
	f.svc = NewConflictService(testLogger(), clockwork.NewFakeClockAt(day("2025-12-04")),
		f.snaps, f.groups, f.states)
	return f
}

func twoNodeGroup() *models.SyncGroup {
	return &models.SyncGroup{
		ID:      "group-1",
		Enabled: true,
		NodeIDs: []string{"node-a", "node-b"},
	}
}

func TestDetectConflictsSingleMemberEmpty(t *testing.T) {
	group := &models.SyncGroup{ID: "group-1", NodeIDs: []string{"node-a"}}
	f := newConflictFixture(t, group)
	f.snaps.snaps = append(f.snaps.snaps,
		testSnapshot("node-a", "tank", "data", "2025-11-01-000000", day("2025-11-01"), nil))

	conflicts, err := f.svc.DetectConflicts(context.Background(), group.ID, "data")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestDetectConflictsTimestampMismatch(t *testing.T) {
	f := newConflictFixture(t, twoNodeGroup())
	f.snaps.snaps = append(f.snaps.snaps,
		testSnapshot("node-a", "tank", "data", "2025-11-01-000000", day("2025-11-01"), nil),
		testSnapshot("node-b", "tank", "data", "2025-11-01-000000", day("2025-11-01").Add(3*time.Minute), nil),
	)

	conflicts, err := f.svc.DetectConflicts(context.Background(), "group-1", "data")
	require.NoError(t, err)

	var found *api.Conflict
	for i := range conflicts {
		if conflicts[i].Type == ConflictTimestampMismatch {
			found = &conflicts[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, SeverityMedium, found.Severity)
	assert.Equal(t, "2025-11-01-000000", found.SnapshotName)
	assert.Len(t, found.Nodes, 2)
}

func TestDetectConflictsSizeMismatch(t *testing.T) {
	f := newConflictFixture(t, twoNodeGroup())
	f.snaps.snaps = append(f.snaps.snaps,
		testSnapshot("node-a", "tank", "data", "2025-11-01-000000", day("2025-11-01"), int64Ptr(100)),
		testSnapshot("node-b", "tank", "data", "2025-11-01-000000", day("2025-11-01"), int64Ptr(200)),
	)

	conflicts, err := f.svc.DetectConflicts(context.Background(), "group-1", "data")
	require.NoError(t, err)

	types := make(map[string]string)
	for _, c := range conflicts {
		types[c.Type] = c.Severity
	}
	assert.Equal(t, SeverityLow, types[ConflictSizeMismatch])
	// Одно имя, две независимые записи
	assert.Equal(t, SeverityHigh, types[ConflictDivergent])
	assert.NotContains(t, types, ConflictTimestampMismatch)
}

func TestDetectConflictsOrphanedSnapshot(t *testing.T) {
	f := newConflictFixture(t, twoNodeGroup())
	f.snaps.snaps = append(f.snaps.snaps,
		testSnapshot("node-a", "tank", "data", "weekly-keep", day("2025-11-01"), nil),
		testSnapshot("node-b", "tank", "data", "2025-11-02-000000", day("2025-11-02"), nil),
	)

	conflicts, err := f.svc.DetectConflicts(context.Background(), "group-1", "data")
	require.NoError(t, err)

	orphans := make([]api.Conflict, 0)
	for _, c := range conflicts {
		if c.Type == ConflictOrphaned {
			orphans = append(orphans, c)
		}
	}
	require.NotEmpty(t, orphans)
	names := make([]string, 0, len(orphans))
	for _, c := range orphans {
		names = append(names, c.SnapshotName)
	}
	assert.Contains(t, names, "weekly-keep")
}

func TestDetectConflictsAncestorSuppressesOrphan(t *testing.T) {
	f := newConflictFixture(t, twoNodeGroup())
	// node-b держит более ранний снапшот с тем же префиксным токеном
	f.snaps.snaps = append(f.snaps.snaps,
		testSnapshot("node-a", "tank", "data", "2025-11-05-000000", day("2025-11-05"), nil),
		testSnapshot("node-b", "tank", "data", "2025-11-01-000000", day("2025-11-01"), nil),
	)

	conflicts, err := f.svc.DetectConflicts(context.Background(), "group-1", "data")
	require.NoError(t, err)

	for _, c := range conflicts {
		if c.Type == ConflictOrphaned {
			assert.NotEqual(t, "2025-11-05-000000", c.SnapshotName)
		}
	}
}

func conflictWith(nodes map[string]api.ConflictNodeInfo) api.Conflict {
	return api.Conflict{
		Type:         ConflictTimestampMismatch,
		SnapshotName: "2025-11-01-000000",
		Dataset:      "data",
		GroupID:      "group-1",
		Nodes:        nodes,
		Severity:     SeverityMedium,
		DetectedAt:   day("2025-12-04"),
	}
}

func TestResolveConflictUseNewest(t *testing.T) {
	f := newConflictFixture(t, twoNodeGroup())
	conflict := conflictWith(map[string]api.ConflictNodeInfo{
		"node-a": {Timestamp: day("2025-11-01"), SnapshotID: "snap-a"},
		"node-b": {Timestamp: day("2025-11-02"), SnapshotID: "snap-b"},
		"node-c": {Timestamp: day("2025-10-30"), SnapshotID: "snap-c"},
	})

	resolution, err := f.svc.ResolveConflict(conflict, StrategyUseNewest)
	require.NoError(t, err)

	assert.Equal(t, ResolutionResolved, resolution.Status)
	assert.Equal(t, "use_newest", resolution.Strategy)
	require.Len(t, resolution.Actions, 2)
	for _, action := range resolution.Actions {
		assert.Equal(t, "node-b", action.SourceNodeID)
		assert.Equal(t, "snap-b", action.SnapshotID)
		assert.NotEqual(t, "node-b", action.TargetNodeID)
	}
}

func TestResolveConflictUseNewestSingleMember(t *testing.T) {
	f := newConflictFixture(t, twoNodeGroup())
	conflict := conflictWith(map[string]api.ConflictNodeInfo{
		"node-a": {Timestamp: day("2025-11-01"), SnapshotID: "snap-a"},
	})

	resolution, err := f.svc.ResolveConflict(conflict, StrategyUseNewest)
	require.NoError(t, err)
	assert.Empty(t, resolution.Actions)
}

func TestResolveConflictUseLargest(t *testing.T) {
	f := newConflictFixture(t, twoNodeGroup())
	conflict := conflictWith(map[string]api.ConflictNodeInfo{
		"node-a": {Timestamp: day("2025-11-01"), Size: int64Ptr(500), SnapshotID: "snap-a"},
		"node-b": {Timestamp: day("2025-11-02"), Size: int64Ptr(100), SnapshotID: "snap-b"},
	})

	resolution, err := f.svc.ResolveConflict(conflict, StrategyUseLargest)
	require.NoError(t, err)
	require.Len(t, resolution.Actions, 1)
	assert.Equal(t, "node-a", resolution.Actions[0].SourceNodeID)
}

func TestResolveConflictPolicies(t *testing.T) {
	f := newConflictFixture(t, twoNodeGroup())
	conflict := conflictWith(map[string]api.ConflictNodeInfo{
		"node-a": {Timestamp: day("2025-11-01"), SnapshotID: "snap-a"},
		"node-b": {Timestamp: day("2025-11-02"), SnapshotID: "snap-b"},
	})

	t.Run("manual", func(t *testing.T) {
		resolution, err := f.svc.ResolveConflict(conflict, StrategyManual)
		require.NoError(t, err)
		assert.Equal(t, ResolutionManual, resolution.Status)
		assert.Empty(t, resolution.Actions)
	})

	t.Run("ignore", func(t *testing.T) {
		resolution, err := f.svc.ResolveConflict(conflict, StrategyIgnore)
		require.NoError(t, err)
		assert.Equal(t, ResolutionIgnored, resolution.Status)
	})

	t.Run("auto resolve delegates to use_newest", func(t *testing.T) {
		resolution, err := f.svc.ResolveConflict(conflict, StrategyAutoResolve)
		require.NoError(t, err)
		assert.Equal(t, "use_newest", resolution.Strategy)
		require.Len(t, resolution.Actions, 1)
		assert.Equal(t, "node-b", resolution.Actions[0].SourceNodeID)
	})

	t.Run("use_majority picks first member", func(t *testing.T) {
		resolution, err := f.svc.ResolveConflict(conflict, StrategyUseMajority)
		require.NoError(t, err)
		assert.Equal(t, "node-a", resolution.Actions[0].SourceNodeID)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := f.svc.ResolveConflict(conflict, Strategy("coin_flip"))
		assert.ErrorIs(t, err, ErrUnknownStrategy)
	})
}

func TestMarkResolved(t *testing.T) {
	f := newConflictFixture(t, twoNodeGroup())
	ctx := context.Background()

	t.Run("targets of actions go syncing", func(t *testing.T) {
		conflict := conflictWith(map[string]api.ConflictNodeInfo{
			"node-a": {Timestamp: day("2025-11-01"), SnapshotID: "snap-a"},
			"node-b": {Timestamp: day("2025-11-02"), SnapshotID: "snap-b"},
		})
		resolution, err := f.svc.ResolveConflict(conflict, StrategyUseNewest)
		require.NoError(t, err)

		require.NoError(t, f.svc.MarkResolved(ctx, resolution))

		state, err := f.states.GetSyncState(ctx, "group-1", "data", "node-a")
		require.NoError(t, err)
		assert.Equal(t, models.SyncStatusSyncing, state.Status)
	})

	t.Run("no actions resets to out_of_sync", func(t *testing.T) {
		conflict := conflictWith(map[string]api.ConflictNodeInfo{
			"node-a": {Timestamp: day("2025-11-01"), SnapshotID: "snap-a"},
			"node-b": {Timestamp: day("2025-11-02"), SnapshotID: "snap-b"},
		})
		resolution, err := f.svc.ResolveConflict(conflict, StrategyIgnore)
		require.NoError(t, err)

		require.NoError(t, f.svc.MarkResolved(ctx, resolution))

		for _, nodeID := range []string{"node-a", "node-b"} {
			state, err := f.states.GetSyncState(ctx, "group-1", "data", nodeID)
			require.NoError(t, err)
			assert.Equal(t, models.SyncStatusOutOfSync, state.Status)
		}
	})
}

func TestMarkConflictsInStates(t *testing.T) {
	f := newConflictFixture(t, twoNodeGroup())
	ctx := context.Background()

	conflict := conflictWith(map[string]api.ConflictNodeInfo{
		"node-a": {Timestamp: day("2025-11-01"), SnapshotID: "snap-a"},
		"node-b": {Timestamp: day("2025-11-02"), SnapshotID: "snap-b"},
	})

	require.NoError(t, f.svc.MarkConflictsInStates(ctx, []api.Conflict{conflict}))

	for _, nodeID := range []string{"node-a", "node-b"} {
		state, err := f.states.GetSyncState(ctx, "group-1", "data", nodeID)
		require.NoError(t, err)
		assert.Equal(t, models.SyncStatusConflict, state.Status)
		assert.Contains(t, state.ErrorMessage, ConflictTimestampMismatch)
	}
}

func TestDetectAllConflicts(t *testing.T) {
	f := newConflictFixture(t, twoNodeGroup())
	f.snaps.snaps = append(f.snaps.snaps,
		testSnapshot("node-a", "tank", "data", "2025-11-01-000000", day("2025-11-01"), nil),
		testSnapshot("node-b", "tank", "data", "2025-11-01-000000", day("2025-11-01").Add(time.Minute), nil),
		testSnapshot("node-a", "tank", "logs", "2025-11-01-000000", day("2025-11-01"), nil),
		testSnapshot("node-b", "tank", "logs", "2025-11-01-000000", day("2025-11-01").Add(time.Minute), nil),
	)

	conflicts, err := f.svc.DetectAllConflicts(context.Background(), "group-1")
	require.NoError(t, err)

	datasets := make(map[string]bool)
	for _, c := range conflicts {
		datasets[c.Dataset] = true
	}
	assert.True(t, datasets["data"])
	assert.True(t, datasets["logs"])
}
