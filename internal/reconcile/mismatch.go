package reconcile

import (
	"fmt"
	"sort"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/pkg/api"
)

// Topology is the replication topology of a sync group.
// Symmetric: каждая пара нод сравнивается в обе стороны.
// Hub-and-spoke (directional): единственное направление — hub → spoke.
type Topology struct {
	Directional bool
	HubNodeID   string
}

// topologyOf derives the topology from a group, validating the hub invariant.
func topologyOf(group *models.SyncGroup) (Topology, error) {
	if !group.Directional {
		return Topology{}, nil
	}
	if group.HubNodeID == "" {
		return Topology{}, fmt.Errorf("%w: directional group %s has no hub", ErrInvalidTopology, group.ID)
	}
	if !group.HasNode(group.HubNodeID) {
		return Topology{}, fmt.Errorf("%w: hub %s is not a member of group %s",
			ErrInvalidTopology, group.HubNodeID, group.ID)
	}
	return Topology{Directional: true, HubNodeID: group.HubNodeID}, nil
}

// mismatchReasonBehindHub / mismatchReasonMissing — direction_reason значения
const (
	mismatchReasonBehindHub = "target latest boundary snapshot behind hub"
	mismatchReasonMissing   = "missing on target, present on sources"
)

// detectDirectionalMismatches finds hub→spoke gaps for one dataset.
// cmp must be built from boundary snapshots only. Хаб никогда не таргет;
// кандидат на доставку — последний boundary снапшот хаба.
func detectDirectionalMismatches(groupID, dataset string, cmp *Comparison, topo Topology, members []string) []api.Mismatch {
	hubLatest := cmp.Latest[topo.HubNodeID]
	if hubLatest == nil {
		// Хабу нечего раздавать
		return nil
	}
	hubLatestName := hubLatest.ShortName()

	mismatches := make([]api.Mismatch, 0)
	for _, target := range members {
		if target == topo.HubNodeID {
			continue
		}

		targetLatest := cmp.Latest[target]
		if targetLatest != nil {
			if targetLatest.ShortName() == hubLatestName {
				continue
			}
			if !targetLatest.Timestamp.UTC().Before(hubLatest.Timestamp.UTC()) {
				// Таргет впереди хаба по времени — не наш случай,
				// этим занимается детектор конфликтов
				continue
			}
		}

		mismatches = append(mismatches, api.Mismatch{
			GroupID:         groupID,
			Dataset:         dataset,
			TargetNodeID:    target,
			MissingSnapshot: hubLatestName,
			SourceNodeIDs:   []string{topo.HubNodeID},
			Reason:          mismatchReasonBehindHub,
			Priority:        calculatePriority(hubLatestName, cmp),
		})
	}
	return mismatches
}

// detectSymmetricMismatches finds pairwise gaps for one dataset.
// Для каждого отсутствующего на таргете имени, которым владеет хотя бы одна
// другая нода, эмитится один Mismatch со всеми держателями в качестве
// источников, отсортированными по node id (первый — primary).
func detectSymmetricMismatches(groupID, dataset string, cmp *Comparison, members []string) []api.Mismatch {
	mismatches := make([]api.Mismatch, 0)
	for _, target := range members {
		for _, name := range cmp.Missing[target] {
			sources := make([]string, 0)
			for _, other := range members {
				if other != target && cmp.HasName(other, name) {
					sources = append(sources, other)
				}
			}
			if len(sources) == 0 {
				continue
			}
			sort.Strings(sources)

			mismatches = append(mismatches, api.Mismatch{
				GroupID:         groupID,
				Dataset:         dataset,
				TargetNodeID:    target,
				MissingSnapshot: name,
				SourceNodeIDs:   sources,
				Reason:          mismatchReasonMissing,
				Priority:        calculatePriority(name, cmp),
			})
		}
	}
	return mismatches
}

// calculatePriority scores how urgently a snapshot should be delivered.
// База 10, +20 если это чей-то последний снапшот, +5 за каждую ноду,
// которой он отсутствует.
func calculatePriority(name string, cmp *Comparison) int {
	priority := 10

	for _, latest := range cmp.Latest {
		if latest != nil && latest.ShortName() == name {
			priority += 20
			break
		}
	}

	for _, missing := range cmp.Missing {
		for _, m := range missing {
			if m == name {
				priority += 5
				break
			}
		}
	}

	return priority
}
