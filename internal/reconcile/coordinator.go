package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/internal/server/storage"
	"github.com/iudanet/zfswitness/pkg/api"
)

// Config tunables of the coordinator. Нулевой MinGapHours означает
// дефолтный guardrail.
type Config struct {
	MinGapHours     float64
	IncrementalOnly bool
}

// Coordinator is the reconciliation engine: it diffs snapshot inventories
// across group members, plans incremental replication under the minimum-gap
// guardrail and records convergence state.
//
// Вся оценка эфемерна — персистится только SyncState. Координатор не trusted
// executor: он выдает команды, выполняют их ноды.
type Coordinator struct {
	logger *slog.Logger
	clock  clockwork.Clock

	nodes     storage.NodeStorage
	snapshots storage.SnapshotStorage
	groups    storage.GroupStorage
	states    storage.SyncStateStorage

	comparator *Comparator

	minGapHours     float64
	incrementalOnly bool

	// mu защищает groupLocks; сами локи сериализуют запись состояний
	// в пределах одной группы
	mu         sync.Mutex
	groupLocks map[string]*sync.Mutex
}

// NewCoordinator creates a new reconciliation coordinator
func NewCoordinator(
	logger *slog.Logger,
	clock clockwork.Clock,
	nodes storage.NodeStorage,
	snapshots storage.SnapshotStorage,
	groups storage.GroupStorage,
	states storage.SyncStateStorage,
	cfg Config,
) *Coordinator {
	minGap := cfg.MinGapHours
	if minGap <= 0 {
		minGap = MinSyncGapHours
	}
	return &Coordinator{
		logger:          logger.With("component", "coordinator"),
		clock:           clock,
		nodes:           nodes,
		snapshots:       snapshots,
		groups:          groups,
		states:          states,
		comparator:      NewComparator(logger, snapshots),
		minGapHours:     minGap,
		incrementalOnly: cfg.IncrementalOnly,
		groupLocks:      make(map[string]*sync.Mutex),
	}
}

// MinGapHours returns the configured guardrail threshold in hours.
func (c *Coordinator) MinGapHours() float64 { return c.minGapHours }

func (c *Coordinator) groupLock(groupID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.groupLocks[groupID]
	if !ok {
		lock = &sync.Mutex{}
		c.groupLocks[groupID] = lock
	}
	return lock
}

// stateKey пара (dataset, нода), для которой нечего доставлять
type stateKey struct {
	dataset string
	nodeID  string
}

// groupEvaluation полный результат одного прохода по группе
type groupEvaluation struct {
	mismatches []api.Mismatch
	plans      []*plannedAction
	inSync     []stateKey
	diag       *diagnostics
}

// DetectMismatches diffs boundary snapshot inventories across group members.
// Чистое чтение: ни планов, ни записи состояний.
func (c *Coordinator) DetectMismatches(ctx context.Context, groupID string) ([]api.Mismatch, error) {
	group, err := c.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	eval, err := c.evaluateGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	return eval.mismatches, nil
}

// BuildActions plans every mismatch into a fully resolved replication action.
// Непустой nodeID оставляет только действия, адресованные этой ноде.
// Тоже чистое чтение; запись состояний делает только GroupInstructions.
func (c *Coordinator) BuildActions(ctx context.Context, groupID, nodeID string) ([]api.ReplicationAction, error) {
	group, err := c.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	eval, err := c.evaluateGroup(ctx, group)
	if err != nil {
		return nil, err
	}

	actions := make([]api.ReplicationAction, 0, len(eval.plans))
	for _, plan := range eval.plans {
		if nodeID != "" && plan.action.TargetNodeID != nodeID {
			continue
		}
		actions = append(actions, plan.action)
	}
	return actions, nil
}

// GroupInstructions evaluates the group and returns one consolidated
// instruction per (dataset, target), recording convergence state as it goes:
// пары без пропусков переходят в in_sync, пары с инструкцией — в syncing,
// отброшенные guardrail-ом кандидаты состояния не трогают.
func (c *Coordinator) GroupInstructions(ctx context.Context, groupID string, includeDiagnostics bool) ([]api.DatasetSyncInstruction, []string, error) {
	group, err := c.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}

	lock := c.groupLock(group.ID)
	lock.Lock()
	defer lock.Unlock()

	eval, err := c.evaluateGroup(ctx, group)
	if err != nil {
		return nil, nil, err
	}

	instructions := consolidate(eval.plans, eval.diag)

	for _, key := range eval.inSync {
		if _, err := c.states.UpsertSyncState(ctx, group.ID, key.dataset, key.nodeID,
			models.SyncStatusInSync, ""); err != nil {
			c.logger.Error("failed to record in_sync state",
				"group_id", group.ID, "dataset", key.dataset, "node_id", key.nodeID, "error", err)
		}
	}
	for _, instr := range instructions {
		if _, err := c.states.UpsertSyncState(ctx, group.ID, instr.Dataset, instr.TargetNodeID,
			models.SyncStatusSyncing, ""); err != nil {
			c.logger.Error("failed to record syncing state",
				"group_id", group.ID, "dataset", instr.Dataset, "node_id", instr.TargetNodeID, "error", err)
		}
	}

	c.logger.Info("group evaluated",
		"group_id", group.ID,
		"mismatches", len(eval.mismatches),
		"instructions", len(instructions),
	)

	if includeDiagnostics {
		return instructions, eval.diag.entries, nil
	}
	return instructions, nil, nil
}

// InstructionsForNode collects the pending instructions addressed to the
// node: фильтр по target, нода запрашивает что ей должны доставить.
func (c *Coordinator) InstructionsForNode(ctx context.Context, nodeID string, includeDiagnostics bool) (*api.InstructionsResponse, error) {
	if _, err := c.nodes.GetNode(ctx, nodeID); err != nil {
		return nil, err
	}

	groups, err := c.groups.ListGroupsForNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	resp := &api.InstructionsResponse{
		NodeID:    nodeID,
		Timestamp: c.clock.Now().UTC(),
		Datasets:  make([]api.DatasetSyncInstruction, 0),
	}

	for _, group := range groups {
		if !group.Enabled {
			continue
		}
		instructions, diag, err := c.GroupInstructions(ctx, group.ID, includeDiagnostics)
		if err != nil {
			// Одна сломанная группа не лишает ноду остальных инструкций
			c.logger.Error("failed to evaluate group",
				"group_id", group.ID, "node_id", nodeID, "error", err)
			continue
		}
		for _, instr := range instructions {
			if instr.TargetNodeID == nodeID {
				resp.Datasets = append(resp.Datasets, instr)
			}
		}
		resp.Diagnostics = append(resp.Diagnostics, diag...)
	}

	return resp, nil
}

// UpdateSyncState records an execution result reported by a node.
func (c *Coordinator) UpdateSyncState(ctx context.Context, req api.UpdateSyncStateRequest) (*models.SyncState, error) {
	status := models.SyncStatus(req.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("invalid sync status %q", req.Status)
	}

	group, err := c.groups.GetGroup(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	if !group.HasNode(req.NodeID) {
		return nil, fmt.Errorf("node %s is not a member of group %s", req.NodeID, req.GroupID)
	}

	lock := c.groupLock(group.ID)
	lock.Lock()
	defer lock.Unlock()

	return c.states.UpsertSyncState(ctx, req.GroupID, req.Dataset, req.NodeID, status, req.ErrorMessage)
}

// StatusSummary aggregates the recorded convergence states of a group.
func (c *Coordinator) StatusSummary(ctx context.Context, groupID string) (*api.SyncStatusSummary, error) {
	if _, err := c.groups.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}

	states, err := c.states.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	summary := &api.SyncStatusSummary{
		GroupID:         groupID,
		TotalStates:     len(states),
		StatusBreakdown: make(map[string]int),
	}
	for _, state := range states {
		summary.StatusBreakdown[string(state.Status)]++
		if summary.LastUpdated == nil || state.UpdatedAt.After(*summary.LastUpdated) {
			updated := state.UpdatedAt
			summary.LastUpdated = &updated
		}
	}
	return summary, nil
}

// evaluateGroup runs detection and planning for every dataset of the group.
// Ошибка одного dataset не прерывает проход — деградация per-dataset.
func (c *Coordinator) evaluateGroup(ctx context.Context, group *models.SyncGroup) (*groupEvaluation, error) {
	// Выключенная группа не производит ни mismatch-ей, ни инструкций,
	// и ее состояния не трогаются
	if !group.Enabled {
		c.logger.Info("sync group is disabled", "group_id", group.ID)
		return &groupEvaluation{diag: &diagnostics{}}, nil
	}

	topo, err := topologyOf(group)
	if err != nil {
		return nil, err
	}

	members := append([]string(nil), group.NodeIDs...)
	sort.Strings(members)
	if len(members) < 2 {
		return &groupEvaluation{diag: &diagnostics{}}, nil
	}

	nodesByID, err := c.memberNodes(ctx, members)
	if err != nil {
		return nil, err
	}

	datasets, err := c.groupDatasets(ctx, members)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	eval := &groupEvaluation{diag: &diagnostics{}}

	for _, dataset := range datasets {
		fetched, err := c.comparator.FetchDataset(ctx, dataset, members)
		if err != nil {
			c.logger.Error("failed to evaluate dataset",
				"group_id", group.ID, "dataset", dataset, "error", err)
			eval.diag.addf("dataset %s: evaluation failed: %v", dataset, err)
			continue
		}

		boundaryByNode := make(map[string][]*models.Snapshot, len(fetched))
		for nodeID, snaps := range fetched {
			boundaryByNode[nodeID] = boundarySnapshots(snaps)
		}
		cmp := Compare(dataset, boundaryByNode)

		var mismatches []api.Mismatch
		var targets []string
		if topo.Directional {
			mismatches = detectDirectionalMismatches(group.ID, dataset, cmp, topo, members)
			for _, m := range members {
				if m != topo.HubNodeID {
					targets = append(targets, m)
				}
			}
		} else {
			mismatches = detectSymmetricMismatches(group.ID, dataset, cmp, members)
			targets = members
		}
		eval.mismatches = append(eval.mismatches, mismatches...)

		mismatchTargets := make(map[string]bool, len(mismatches))
		for _, m := range mismatches {
			mismatchTargets[m.TargetNodeID] = true
		}
		for _, target := range targets {
			if !mismatchTargets[target] {
				eval.inSync = append(eval.inSync, stateKey{dataset: dataset, nodeID: target})
			}
		}

		for _, m := range mismatches {
			plan := planMismatch(planInput{
				mismatch:        m,
				cmp:             cmp,
				nodes:           nodesByID,
				now:             now,
				minGapHours:     c.minGapHours,
				incrementalOnly: c.incrementalOnly,
			}, eval.diag)
			if plan != nil {
				eval.plans = append(eval.plans, plan)
			}
		}
	}

	return eval, nil
}

// memberNodes loads node records for the group members.
func (c *Coordinator) memberNodes(ctx context.Context, members []string) (map[string]*models.Node, error) {
	nodesByID := make(map[string]*models.Node, len(members))
	for _, nodeID := range members {
		node, err := c.nodes.GetNode(ctx, nodeID)
		if err != nil {
			return nil, fmt.Errorf("failed to load node %s: %w", nodeID, err)
		}
		nodesByID[nodeID] = node
	}
	return nodesByID, nil
}

// groupDatasets returns the sorted union of dataset names reported by the
// members.
func (c *Coordinator) groupDatasets(ctx context.Context, members []string) ([]string, error) {
	seen := make(map[string]bool)
	for _, nodeID := range members {
		snaps, err := c.snapshots.ListByNode(ctx, nodeID)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots for node %s: %w", nodeID, err)
		}
		for _, s := range snaps {
			seen[s.Dataset] = true
		}
	}

	datasets := make([]string, 0, len(seen))
	for dataset := range seen {
		datasets = append(datasets, dataset)
	}
	sort.Strings(datasets)
	return datasets, nil
}
