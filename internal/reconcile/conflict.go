package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/internal/server/storage"
	"github.com/iudanet/zfswitness/pkg/api"
)

// Conflict kinds, от безобидного к критичному
const (
	ConflictTimestampMismatch = "timestamp_mismatch" // одно имя, разные timestamps
	ConflictSizeMismatch      = "size_mismatch"      // одно имя, разные размеры
	ConflictDivergent         = "divergent_snapshots" // одно имя, разные записи
	ConflictOrphaned          = "orphaned_snapshot"   // нет общего предка
)

// Severity levels
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Strategy is a conflict resolution policy selected by the caller.
type Strategy string

const (
	StrategyAutoResolve Strategy = "auto_resolve" // делегирует use_newest
	StrategyManual      Strategy = "manual"
	StrategyIgnore      Strategy = "ignore"
	StrategyUseNewest   Strategy = "use_newest"
	StrategyUseLargest  Strategy = "use_largest"
	StrategyUseMajority Strategy = "use_majority" // пока эвристика: первый member
)

// Resolution statuses
const (
	ResolutionResolved = "resolved"
	ResolutionManual   = "requires_manual_intervention"
	ResolutionIgnored  = "ignored"
)

// ConflictService detects semantic conflicts between same-named snapshots on
// different nodes and applies resolution strategies. Конфликты эфемерны,
// персистится только отметка в sync_states.
type ConflictService struct {
	logger *slog.Logger
	clock  clockwork.Clock

	snapshots storage.SnapshotStorage
	groups    storage.GroupStorage
	states    storage.SyncStateStorage
}

// NewConflictService creates a new conflict service
func NewConflictService(
	logger *slog.Logger,
	clock clockwork.Clock,
	snapshots storage.SnapshotStorage,
	groups storage.GroupStorage,
	states storage.SyncStateStorage,
) *ConflictService {
	return &ConflictService{
		logger:    logger.With("component", "conflicts"),
		clock:     clock,
		snapshots: snapshots,
		groups:    groups,
		states:    states,
	}
}

// DetectConflicts inspects one dataset across the group members. Смотрит на
// все снапшоты, не только boundary: конфликт атрибутов важен независимо от
// пригодности снапшота к репликации.
func (s *ConflictService) DetectConflicts(ctx context.Context, groupID, dataset string) ([]api.Conflict, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(group.NodeIDs) < 2 {
		// Конфликт требует минимум двух участников
		return []api.Conflict{}, nil
	}

	members := append([]string(nil), group.NodeIDs...)
	sort.Strings(members)

	byNode := make(map[string]map[string]*models.Snapshot, len(members))
	for _, nodeID := range members {
		snaps, err := s.snapshots.ListByNodeDataset(ctx, nodeID, dataset)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots for node %s: %w", nodeID, err)
		}
		names := make(map[string]*models.Snapshot, len(snaps))
		for _, snap := range snaps {
			names[snap.ShortName()] = snap
		}
		byNode[nodeID] = names
	}

	allNames := make(map[string]bool)
	for _, names := range byNode {
		for name := range names {
			allNames[name] = true
		}
	}
	sortedNames := make([]string, 0, len(allNames))
	for name := range allNames {
		sortedNames = append(sortedNames, name)
	}
	sort.Strings(sortedNames)

	now := s.clock.Now().UTC()
	conflicts := make([]api.Conflict, 0)

	for _, name := range sortedNames {
		holders := make(map[string]*models.Snapshot)
		for _, nodeID := range members {
			if snap, ok := byNode[nodeID][name]; ok {
				holders[nodeID] = snap
			}
		}
		if len(holders) < 2 {
			continue
		}

		nodeInfos := conflictNodes(holders)

		timestamps := make(map[time.Time]bool)
		for _, snap := range holders {
			timestamps[snap.Timestamp.UTC()] = true
		}
		if len(timestamps) > 1 {
			conflicts = append(conflicts, api.Conflict{
				Type:         ConflictTimestampMismatch,
				SnapshotName: name,
				Dataset:      dataset,
				GroupID:      groupID,
				Nodes:        nodeInfos,
				Severity:     SeverityMedium,
				DetectedAt:   now,
			})
		}

		sizes := make(map[int64]bool)
		sized := 0
		for _, snap := range holders {
			if snap.Size != nil {
				sizes[*snap.Size] = true
				sized++
			}
		}
		if sized > 1 && len(sizes) > 1 {
			conflicts = append(conflicts, api.Conflict{
				Type:         ConflictSizeMismatch,
				SnapshotName: name,
				Dataset:      dataset,
				GroupID:      groupID,
				Nodes:        nodeInfos,
				Severity:     SeverityLow,
				DetectedAt:   now,
			})
		}

		// Одно имя, но разные записи — "same name" не значит "same content"
		ids := make(map[string]bool)
		for _, snap := range holders {
			ids[snap.ID] = true
		}
		if len(ids) > 1 {
			conflicts = append(conflicts, api.Conflict{
				Type:         ConflictDivergent,
				SnapshotName: name,
				Dataset:      dataset,
				GroupID:      groupID,
				Nodes:        nodeInfos,
				Severity:     SeverityHigh,
				DetectedAt:   now,
			})
		}
	}

	// Сироты: имя есть только на одной ноде и ни у кого нет правдоподобного
	// общего предка
	for _, nodeID := range members {
		for name, snap := range byNode[nodeID] {
			held := 0
			for _, other := range members {
				if _, ok := byNode[other][name]; ok {
					held++
				}
			}
			if held > 1 {
				continue
			}
			if hasCommonAncestor(snap, name, nodeID, members, byNode) {
				continue
			}
			conflicts = append(conflicts, api.Conflict{
				Type:         ConflictOrphaned,
				SnapshotName: name,
				Dataset:      dataset,
				GroupID:      groupID,
				Nodes:        conflictNodes(map[string]*models.Snapshot{nodeID: snap}),
				Severity:     SeverityMedium,
				DetectedAt:   now,
			})
		}
	}

	return conflicts, nil
}

// DetectAllConflicts runs detection over every dataset the members report.
func (s *ConflictService) DetectAllConflicts(ctx context.Context, groupID string) ([]api.Conflict, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, nodeID := range group.NodeIDs {
		snaps, err := s.snapshots.ListByNode(ctx, nodeID)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots for node %s: %w", nodeID, err)
		}
		for _, snap := range snaps {
			seen[snap.Dataset] = true
		}
	}

	datasets := make([]string, 0, len(seen))
	for dataset := range seen {
		datasets = append(datasets, dataset)
	}
	sort.Strings(datasets)

	all := make([]api.Conflict, 0)
	for _, dataset := range datasets {
		conflicts, err := s.DetectConflicts(ctx, groupID, dataset)
		if err != nil {
			return nil, err
		}
		all = append(all, conflicts...)
	}
	return all, nil
}

// ResolveConflict applies a strategy to a conflict. Persistence is not
// touched here; see MarkResolved.
func (s *ConflictService) ResolveConflict(conflict api.Conflict, strategy Strategy) (*api.Resolution, error) {
	s.logger.Info("resolving conflict",
		"type", conflict.Type,
		"snapshot", conflict.SnapshotName,
		"strategy", string(strategy),
	)

	now := s.clock.Now().UTC()

	switch strategy {
	case StrategyManual:
		return &api.Resolution{
			Status:     ResolutionManual,
			Conflict:   conflict,
			Message:    "this conflict requires manual resolution",
			ResolvedAt: now,
		}, nil

	case StrategyIgnore:
		return &api.Resolution{
			Status:     ResolutionIgnored,
			Conflict:   conflict,
			Message:    "conflict will be ignored",
			ResolvedAt: now,
		}, nil

	case StrategyAutoResolve:
		return s.ResolveConflict(conflict, StrategyUseNewest)
	}

	if len(conflict.Nodes) == 0 {
		return nil, fmt.Errorf("conflict %s has no nodes", conflict.Type)
	}

	nodeIDs := make([]string, 0, len(conflict.Nodes))
	for nodeID := range conflict.Nodes {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	var sourceNodeID string
	switch strategy {
	case StrategyUseNewest:
		for _, nodeID := range nodeIDs {
			if sourceNodeID == "" ||
				conflict.Nodes[nodeID].Timestamp.After(conflict.Nodes[sourceNodeID].Timestamp) {
				sourceNodeID = nodeID
			}
		}
	case StrategyUseLargest:
		for _, nodeID := range nodeIDs {
			if sourceNodeID == "" || sizeOf(conflict.Nodes[nodeID]) > sizeOf(conflict.Nodes[sourceNodeID]) {
				sourceNodeID = nodeID
			}
		}
	case StrategyUseMajority:
		// TODO: считать реальное большинство по группе; пока первый member
		sourceNodeID = nodeIDs[0]
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	actions := make([]api.ResolutionAction, 0, len(nodeIDs)-1)
	for _, targetID := range nodeIDs {
		if targetID == sourceNodeID {
			continue
		}
		actions = append(actions, api.ResolutionAction{
			ActionType:   ActionTypeSyncSnapshot,
			SourceNodeID: sourceNodeID,
			TargetNodeID: targetID,
			SnapshotID:   conflict.Nodes[sourceNodeID].SnapshotID,
			SnapshotName: conflict.SnapshotName,
			Dataset:      conflict.Dataset,
			Reason:       fmt.Sprintf("resolving conflict using %s", strategy),
		})
	}

	return &api.Resolution{
		Status:     ResolutionResolved,
		Strategy:   string(strategy),
		Conflict:   conflict,
		Actions:    actions,
		ResolvedAt: now,
	}, nil
}

// MarkResolved records the outcome of a resolution in sync states: targets
// of corrective actions go syncing, всем остальным сбрасывается статус в
// out_of_sync для переоценки.
func (s *ConflictService) MarkResolved(ctx context.Context, resolution *api.Resolution) error {
	conflict := resolution.Conflict

	targets := make(map[string]bool, len(resolution.Actions))
	for _, action := range resolution.Actions {
		targets[action.TargetNodeID] = true
	}

	nodeIDs := make([]string, 0, len(conflict.Nodes))
	for nodeID := range conflict.Nodes {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	for _, nodeID := range nodeIDs {
		var status models.SyncStatus
		switch {
		case len(resolution.Actions) == 0:
			status = models.SyncStatusOutOfSync
		case targets[nodeID]:
			status = models.SyncStatusSyncing
		default:
			continue
		}
		if _, err := s.states.UpsertSyncState(ctx, conflict.GroupID, conflict.Dataset,
			nodeID, status, ""); err != nil {
			return fmt.Errorf("failed to update sync state for node %s: %w", nodeID, err)
		}
	}
	return nil
}

// MarkConflictsInStates flags every involved (dataset, node) pair as
// conflicted so operators see it in the status summary.
func (s *ConflictService) MarkConflictsInStates(ctx context.Context, conflicts []api.Conflict) error {
	for _, conflict := range conflicts {
		nodeIDs := make([]string, 0, len(conflict.Nodes))
		for nodeID := range conflict.Nodes {
			nodeIDs = append(nodeIDs, nodeID)
		}
		sort.Strings(nodeIDs)

		for _, nodeID := range nodeIDs {
			if _, err := s.states.UpsertSyncState(ctx, conflict.GroupID, conflict.Dataset,
				nodeID, models.SyncStatusConflict,
				fmt.Sprintf("conflict detected: %s", conflict.Type)); err != nil {
				return fmt.Errorf("failed to mark conflict for node %s: %w", nodeID, err)
			}
		}
	}
	return nil
}

func conflictNodes(holders map[string]*models.Snapshot) map[string]api.ConflictNodeInfo {
	infos := make(map[string]api.ConflictNodeInfo, len(holders))
	for nodeID, snap := range holders {
		infos[nodeID] = api.ConflictNodeInfo{
			Timestamp:  snap.Timestamp.UTC(),
			Size:       snap.Size,
			SnapshotID: snap.ID,
		}
	}
	return infos
}

// hasCommonAncestor reports whether any other member holds an older snapshot
// sharing the name-prefix token. Грубая эвристика вместо настоящей проверки
// ZFS-родословной: флагуем намерение, не доказываем.
func hasCommonAncestor(snap *models.Snapshot, name, nodeID string, members []string, byNode map[string]map[string]*models.Snapshot) bool {
	prefix := name
	if idx := strings.Index(name, "-"); idx > 0 {
		prefix = name[:idx]
	}

	for _, other := range members {
		if other == nodeID {
			continue
		}
		for otherName, otherSnap := range byNode[other] {
			if strings.HasPrefix(otherName, prefix) && otherSnap.Timestamp.Before(snap.Timestamp) {
				return true
			}
		}
	}
	return false
}

func sizeOf(info api.ConflictNodeInfo) int64 {
	if info.Size == nil {
		return 0
	}
	return *info.Size
}
