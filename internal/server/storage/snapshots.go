package storage

import (
	"context"

	"github.com/iudanet/zfswitness/internal/models"
)

// SnapshotStorage defines interface for snapshot inventory persistence.
// Снапшоты иммутабельны: только вставка, точечное удаление по имени
// (нода удалила снапшот по retention) и массовое удаление при
// перерегистрации ноды.
type SnapshotStorage interface {
	// AddSnapshots inserts reported snapshots. Records that already exist
	// for (node, pool, dataset, name) are skipped, not updated.
	AddSnapshots(ctx context.Context, snapshots []*models.Snapshot) error

	// ListByNode retrieves all snapshots reported by a node
	ListByNode(ctx context.Context, nodeID string) ([]*models.Snapshot, error)

	// ListByNodeDataset retrieves a node's snapshots for a dataset, any pool
	ListByNodeDataset(ctx context.Context, nodeID, dataset string) ([]*models.Snapshot, error)

	// ListByPoolDataset retrieves a node's snapshots for an exact pool/dataset
	ListByPoolDataset(ctx context.Context, pool, dataset, nodeID string) ([]*models.Snapshot, error)

	// DeleteByName removes a single snapshot record reported as removed
	DeleteByName(ctx context.Context, nodeID, pool, dataset, name string) error

	// DeleteByNode removes a node's whole inventory (re-registration)
	DeleteByNode(ctx context.Context, nodeID string) error
}
