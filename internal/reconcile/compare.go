package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/iudanet/zfswitness/internal/models"
	"github.com/iudanet/zfswitness/internal/server/storage"
)

// Comparison результат сравнения инвентарей одного dataset по нодам.
// Все имена нормализованы (часть после последнего "@").
type Comparison struct {
	Dataset string

	// Common identities present on every compared node
	Common []string

	// Unique identities present only on that node
	Unique map[string][]string

	// Missing identities present on at least one other node but absent here
	Missing map[string][]string

	// Latest newest record by timestamp per node, nil entry if node has none
	Latest map[string]*models.Snapshot

	// byNode нормализованное имя -> запись, по нодам
	byNode map[string]map[string]*models.Snapshot
}

// Record returns the snapshot record for a normalized name on a node, or nil.
func (c *Comparison) Record(nodeID, name string) *models.Snapshot {
	return c.byNode[nodeID][name]
}

// Names returns the sorted normalized names held by a node.
func (c *Comparison) Names(nodeID string) []string {
	names := make([]string, 0, len(c.byNode[nodeID]))
	for name := range c.byNode[nodeID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasName reports whether the node holds the normalized name.
func (c *Comparison) HasName(nodeID, name string) bool {
	_, ok := c.byNode[nodeID][name]
	return ok
}

// Compare computes set differences across node inventories for one dataset.
// Выполняет только нормализацию и теорию множеств: никакой фильтрации по
// времени, это забота вызывающего.
func Compare(dataset string, snapshotsByNode map[string][]*models.Snapshot) *Comparison {
	cmp := &Comparison{
		Dataset: dataset,
		Common:  make([]string, 0),
		Unique:  make(map[string][]string, len(snapshotsByNode)),
		Missing: make(map[string][]string, len(snapshotsByNode)),
		Latest:  make(map[string]*models.Snapshot, len(snapshotsByNode)),
		byNode:  make(map[string]map[string]*models.Snapshot, len(snapshotsByNode)),
	}

	for nodeID, snaps := range snapshotsByNode {
		names := make(map[string]*models.Snapshot, len(snaps))
		for _, snap := range snaps {
			names[snap.ShortName()] = snap
			if latest := cmp.Latest[nodeID]; latest == nil || snap.Timestamp.After(latest.Timestamp) {
				cmp.Latest[nodeID] = snap
			}
		}
		cmp.byNode[nodeID] = names
	}

	if len(cmp.byNode) == 0 {
		return cmp
	}

	// Объединение всех имен и подсчет держателей
	holders := make(map[string]int)
	for _, names := range cmp.byNode {
		for name := range names {
			holders[name]++
		}
	}

	total := len(cmp.byNode)
	for name, count := range holders {
		if count == total {
			cmp.Common = append(cmp.Common, name)
		}
	}
	sort.Strings(cmp.Common)

	for nodeID, names := range cmp.byNode {
		unique := make([]string, 0)
		missing := make([]string, 0)
		for name := range names {
			if holders[name] == 1 {
				unique = append(unique, name)
			}
		}
		for name := range holders {
			if _, ok := names[name]; !ok {
				missing = append(missing, name)
			}
		}
		sort.Strings(unique)
		sort.Strings(missing)
		cmp.Unique[nodeID] = unique
		cmp.Missing[nodeID] = missing
	}

	return cmp
}

// Comparator fetches node inventories and compares them.
type Comparator struct {
	logger    *slog.Logger
	snapshots storage.SnapshotStorage
}

// NewComparator creates a new snapshot comparator
func NewComparator(logger *slog.Logger, snapshots storage.SnapshotStorage) *Comparator {
	return &Comparator{
		logger:    logger.With("component", "comparator"),
		snapshots: snapshots,
	}
}

// CompareDataset compares a dataset across nodes, any pool.
func (c *Comparator) CompareDataset(ctx context.Context, dataset string, nodeIDs []string) (*Comparison, error) {
	snapshotsByNode, err := c.FetchDataset(ctx, dataset, nodeIDs)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("comparing snapshots",
		"dataset", dataset,
		"nodes", len(nodeIDs),
	)

	return Compare(dataset, snapshotsByNode), nil
}

// FetchDataset loads each node's snapshot records for a dataset.
func (c *Comparator) FetchDataset(ctx context.Context, dataset string, nodeIDs []string) (map[string][]*models.Snapshot, error) {
	snapshotsByNode := make(map[string][]*models.Snapshot, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		snaps, err := c.snapshots.ListByNodeDataset(ctx, nodeID, dataset)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots for node %s: %w", nodeID, err)
		}
		snapshotsByNode[nodeID] = snaps
	}
	return snapshotsByNode, nil
}
